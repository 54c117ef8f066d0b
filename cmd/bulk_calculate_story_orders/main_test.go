// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/core/ordering"
)

/*
TestParseFlags maps the command line onto reorderer options.
*/
func TestParseFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want ordering.Options
	}{
		{"defaults", nil, ordering.Options{BatchSize: 1000, LogInterval: ordering.DefaultLogInterval}},
		{"all flags", []string{"--batch-size", "250", "--log-interval=5", "--create-index"}, ordering.Options{BatchSize: 250, LogInterval: 5, CreateIndex: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, 1000, io.Discard)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

/*
TestParseFlags_Invalid rejects unusable settings.
*/
func TestParseFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero batch", []string{"--batch-size", "0"}},
		{"negative interval", []string{"--log-interval", "-1"}},
		{"not a number", []string{"--batch-size", "many"}},
		{"unknown flag", []string{"--dry-run"}},
		{"positional", []string{"now"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, 1000, io.Discard)
			assert.Error(t, err)
		})
	}
}

/*
TestParseFlags_Help surfaces the help request.
*/
func TestParseFlags_Help(t *testing.T) {
	_, err := parseFlags([]string{"--help"}, 1000, io.Discard)
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

/*
TestRun_ExitCodes verifies that flag handling does not depend on the
database configuration.
*/
func TestRun_ExitCodes(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "BULK_BATCH_SIZE"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, exitOK},
		{"negative batch", []string{"--batch-size", "-1"}, exitUsage},
		{"positional", []string{"now"}, exitUsage},
		{"missing database url", nil, exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(context.Background(), tt.args, io.Discard))
		})
	}
}
