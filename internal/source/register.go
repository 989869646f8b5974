// Package source pulls in every plugin implementation so importing it
// registers them all. cmd binaries import this package for side effects.
package source

import (
	_ "github.com/randalmurphal/tasksync/internal/source/github"
	_ "github.com/randalmurphal/tasksync/internal/source/gitlab"
	_ "github.com/randalmurphal/tasksync/internal/source/hubspot"
	_ "github.com/randalmurphal/tasksync/internal/source/jira"
	_ "github.com/randalmurphal/tasksync/internal/source/notion"
	_ "github.com/randalmurphal/tasksync/internal/source/peakflo"
)
