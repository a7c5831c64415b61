package models

type UserContext struct{}

type EmailContext struct{}

type AdminContext struct{}
