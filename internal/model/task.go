package model

import (
	"time"
)

// LoadStatus represents the final state of a bundle load.
type LoadStatus string

const (
	LoadStatusPending   LoadStatus = "pending"
	LoadStatusSucceeded LoadStatus = "succeeded"
	LoadStatusFailed    LoadStatus = "failed"
)

// LoadResult is the outcome of loading a single bundle.
type LoadResult struct {
	TaskID          string
	PackageName     string
	BundleName      string
	LoadMode        LoadMode
	LoadMethod      LoadMethod
	Status          LoadStatus
	Error           string
	Assets          []string
	DownloadedBytes uint64
	Duration        time.Duration
}

// LoadProgress represents the completion state of a multi bundle load.
type LoadProgress struct {
	Done  int
	Total int
}
