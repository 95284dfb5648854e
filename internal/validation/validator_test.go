// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/watchhook/watchhook/internal/models"
)

func TestValidateStructPassing(t *testing.T) {
	event := models.NormalizedEvent{
		Status: models.StatusScrobble,
		Media: models.MediaItem{
			Type:  models.MediaTypeMovie,
			Title: "Heat",
		},
		UserIdentity: "alice",
		Source:       models.SourcePlex,
		Timestamp:    time.Now(),
	}

	if err := ValidateStruct(&event); err != nil {
		t.Errorf("expected valid event, got %v", err)
	}
}

func TestValidateStructMissingFields(t *testing.T) {
	event := models.NormalizedEvent{
		Status: models.StatusScrobble,
		Source: models.SourcePlex,
	}

	err := ValidateStruct(&event)
	if err == nil {
		t.Fatal("expected validation error for missing fields")
	}

	fields := make(map[string]bool)
	for _, fe := range err.Errors() {
		fields[fe.Field()] = true
	}
	if !fields["UserIdentity"] {
		t.Errorf("expected UserIdentity failure, got fields %v", fields)
	}
	if !fields["Title"] {
		t.Errorf("expected Title failure, got fields %v", fields)
	}
}

func TestValidateStructBadEnums(t *testing.T) {
	event := models.NormalizedEvent{
		Status: "rewinding",
		Media: models.MediaItem{
			Type:  "cassette",
			Title: "Heat",
		},
		UserIdentity: "alice",
		Source:       "vcr",
		Timestamp:    time.Now(),
	}

	err := ValidateStruct(&event)
	if err == nil {
		t.Fatal("expected validation error for bad enum values")
	}

	var sawOneof bool
	for _, fe := range err.Errors() {
		if fe.Tag() == "oneof" {
			sawOneof = true
		}
	}
	if !sawOneof {
		t.Errorf("expected oneof failures, got %v", err)
	}
}

func TestToAPIErrorSingleField(t *testing.T) {
	type req struct {
		Name string `validate:"required"`
	}

	err := ValidateStruct(&req{})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Message != "Name is required" {
		t.Errorf("message = %q, want %q", apiErr.Message, "Name is required")
	}
	if apiErr.Details["field"] != "Name" {
		t.Errorf("details field = %v, want Name", apiErr.Details["field"])
	}
}

func TestToAPIErrorMultipleFields(t *testing.T) {
	type req struct {
		Name  string `validate:"required"`
		Count int    `validate:"min=1"`
	}

	err := ValidateStruct(&req{})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if !strings.Contains(apiErr.Message, "Name") || !strings.Contains(apiErr.Message, "Count") {
		t.Errorf("combined message missing fields: %q", apiErr.Message)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("expected fields detail for multiple errors")
	}
}

func TestTranslateMinMaxStrings(t *testing.T) {
	type req struct {
		Secret string `validate:"min=32"`
	}

	err := ValidateStruct(&req{Secret: "short"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if want := "Secret must be at least 32 characters"; err.Errors()[0].Error() != want {
		t.Errorf("message = %q, want %q", err.Errors()[0].Error(), want)
	}
}
