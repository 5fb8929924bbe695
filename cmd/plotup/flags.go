package main

import "time"

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

// UpFlags holds flags for the up command.
type UpFlags struct {
	AuxCmd     string
	PrimaryCmd string
	HistoryDSN string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen   string
	BasePath string
	Dir      string
}

// SweepFlags holds flags for the sweep command.
type SweepFlags struct {
	Dir    string
	MaxAge time.Duration
}
