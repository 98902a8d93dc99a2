package entities

import "errors"

// Domain errors
var (
	// Job errors
	ErrJobNotFound     = errors.New("extraction job not found")
	ErrJobNotQueued    = errors.New("extraction job is not queued")
	ErrJobTerminal     = errors.New("extraction job already finished")
	ErrEmptyTranscript = errors.New("transcript is empty")

	// Episode errors
	ErrEpisodeNotFound = errors.New("episode not found")
	ErrInvalidDisorder = errors.New("invalid disorder")

	// Generic errors
	ErrInvalidRequest = errors.New("invalid request")
)
