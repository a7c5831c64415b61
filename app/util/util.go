package util

import (
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

func Env(name string, defaultValue ...string) string {
	value, ok := os.LookupEnv(name)
	if !ok && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	Assert(ok, "Environment variable "+name+" not found")
	return value
}

func EnvBool(name string, defaultValue bool) bool {
	value, ok := os.LookupEnv(name)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	Assert(err == nil, "Environment variable "+name+" is not a bool:", value)
	return parsed
}

func EnvDuration(name string, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	Assert(err == nil, "Environment variable "+name+" is not a duration:", value)
	return parsed
}

func Assert(ok bool, args ...any) {
	if !ok {
		log.Fatal("Assertion failed, killing app!!!", append([]any{"FATAL:"}, args...))
		os.Exit(1)
	}
}

// CountCharacters counts runes, which is what the quota is denominated in.
// A browser's text.length counts UTF-16 code units and reports 2 for emoji
// and other characters outside the Basic Multilingual Plane.
func CountCharacters(s string) int64 {
	return int64(utf8.RuneCountInString(s))
}

// Preview shortens s to at most n runes, appending an ellipsis when cut.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
