// Package labelsync makes sure a repository defines the labels the engine
// manages, with the expected color and description.
package labelsync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/steveyegge/flakewatch/internal/types"
)

// Labels is the set of labels every tracked repository needs.
var Labels = []types.Label{
	{Name: types.LabelIssue, Color: "ededed", Description: "Issues opened and managed by flakewatch"},
	{Name: types.LabelFlaky, Color: "fef2c0", Description: "Test passed and failed at the same commit; not closed automatically"},
	{Name: types.LabelQuiet, Color: "c5def5", Description: "flakewatch stops commenting on this issue"},
}

// Client is the label API of a tracker.
type Client interface {
	ListLabels(ctx context.Context) ([]types.Label, error)
	CreateLabel(ctx context.Context, label types.Label) error
	UpdateLabel(ctx context.Context, label types.Label) error
}

// Result lists what Sync changed.
type Result struct {
	Created []string
	Updated []string
}

// Sync creates missing labels and updates ones whose color or description
// drifted. Label names are compared case-insensitively, like GitHub does.
// Failures on one label do not stop the others.
func Sync(ctx context.Context, client Client, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	existing, err := client.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	byName := make(map[string]types.Label, len(existing))
	for _, l := range existing {
		byName[strings.ToLower(l.Name)] = l
	}

	result := &Result{}
	var errs []error
	for _, want := range Labels {
		have, ok := byName[strings.ToLower(want.Name)]
		switch {
		case !ok:
			if err := client.CreateLabel(ctx, want); err != nil {
				errs = append(errs, err)
				continue
			}
			logger.Info("created label", "label", want.Name)
			result.Created = append(result.Created, want.Name)
		case !strings.EqualFold(have.Color, want.Color) || have.Description != want.Description:
			if err := client.UpdateLabel(ctx, want); err != nil {
				errs = append(errs, err)
				continue
			}
			logger.Info("updated label", "label", want.Name)
			result.Updated = append(result.Updated, want.Name)
		}
	}
	if len(errs) > 0 {
		return result, fmt.Errorf("label sync failed for %d label(s): %w", len(errs), errs[0])
	}
	return result, nil
}
