package converters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"voxa/m/v2/app/models"

	"github.com/sirupsen/logrus"
)

// Containers browsers record into. The voice provider accepts them poorly, so
// they are transcoded to mp3 before cloning.
var transcodedExtensions = map[string]bool{
	".m4a":  true,
	".mp4":  true,
	".oga":  true,
	".ogg":  true,
	".opus": true,
	".webm": true,
}

func NeedsTranscoding(fileName string) bool {
	return transcodedExtensions[strings.ToLower(filepath.Ext(fileName))]
}

// Available reports whether an ffmpeg binary is on the PATH.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// TranscodeSample converts a recorded sample to mono mp3 and returns it with
// its duration.
func TranscodeSample(ctx context.Context, sample models.VoiceSample) (models.VoiceSample, time.Duration, error) {
	dir, err := os.MkdirTemp("", "voxa-sample-")
	if err != nil {
		return sample, 0, fmt.Errorf("TranscodeSample: %w", err)
	}
	defer os.RemoveAll(dir)

	ext := filepath.Ext(sample.FileName)
	inputFile := filepath.Join(dir, "input"+ext)
	outputFile := filepath.Join(dir, "sample.mp3")
	if err := os.WriteFile(inputFile, sample.Data, 0o600); err != nil {
		return sample, 0, fmt.Errorf("TranscodeSample: %w", err)
	}
	duration, err := ConvertWithFFMPEG(ctx, inputFile, outputFile)
	if err != nil {
		return sample, 0, fmt.Errorf("TranscodeSample: %w", err)
	}
	data, err := os.ReadFile(outputFile)
	if err != nil {
		return sample, 0, fmt.Errorf("TranscodeSample: %w", err)
	}
	return models.VoiceSample{
		FileName: strings.TrimSuffix(sample.FileName, ext) + ".mp3",
		Data:     data,
	}, duration, nil
}

func ConvertWithFFMPEG(ctx context.Context, inputFile string, outputFile string) (duration time.Duration, err error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-i", inputFile, "-ac", "1", "-b:a", "128k", outputFile)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("failed to convert %s to %s: %s\n%s", inputFile, outputFile, err, output)
	}
	outputStr := string(output)
	duration, err = ParseDuration(outputStr)
	if err != nil {
		logrus.Errorf("failed to parse duration %s: %s", outputStr, err)
		return 0, nil
	}
	return duration, nil
}

func ParseDuration(outputStr string) (duration time.Duration, err error) {
	// size=      13kB time=00:00:01.63 bitrate=  67.5kbits/s speed=6.97x
	arrayOfTimes := strings.Split(outputStr, "time=")
	durationStr := arrayOfTimes[len(arrayOfTimes)-1]
	durationStr = strings.Split(durationStr, " ")[0]
	if durationStr == "" {
		return 0, fmt.Errorf("duration is empty, full output: %s", outputStr)
	}
	parsedTime, err := time.Parse("15:04:05.99", durationStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse time %s: %s", durationStr, err)
	}
	dayOnly := time.Date(parsedTime.Year(), parsedTime.Month(), parsedTime.Day(), 0, 0, 0, 0, parsedTime.Location())
	return parsedTime.Sub(dayOnly), nil
}
