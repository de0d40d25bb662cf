package repository

import "errors"

var (
	// ErrUnknownCategory is returned for a reference category without a backing table.
	ErrUnknownCategory = errors.New("unknown reference category")
	// ErrStaleStagedRows is returned when rows changed status underneath a commit.
	ErrStaleStagedRows = errors.New("staged rows are no longer pending")
)
