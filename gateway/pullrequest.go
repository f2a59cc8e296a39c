/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// CreatePR opens a pull request from branch into the configured base branch
// and returns its HTML URL. Only a 201 Created response counts as success.
// Labels are applied afterwards; a labeling failure is logged only.
func (g *Gateway) CreatePR(ctx context.Context, branch, title, body string) (string, error) {
	log := clog.FromContext(ctx).With("branch", branch).With("base", g.baseBranch)

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	pr, resp, err := g.client.PullRequests.Create(ctx, g.owner, g.name, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(branch),
		Base:  github.Ptr(g.baseBranch),
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	switch {
	case err != nil:
		log.With("status", status).With("error", err.Error()).Error("Pull request creation failed")
		return "", &PRCreationError{StatusCode: status, Err: err}
	case status != http.StatusCreated:
		log.With("status", status).Error("Pull request creation returned an unexpected status")
		return "", &PRCreationError{StatusCode: status, Err: errors.New("expected 201 Created")}
	case pr.GetHTMLURL() == "":
		log.Error("Pull request response has no html_url")
		return "", &PRCreationError{StatusCode: status, Err: errors.New("response missing html_url")}
	}

	log = log.With("pr", pr.GetHTMLURL())
	log.Info("Created pull request")

	if len(g.labels) > 0 {
		if _, _, err := g.client.Issues.AddLabelsToIssue(ctx, g.owner, g.name, pr.GetNumber(), g.labels); err != nil {
			log.With("labels", g.labels).With("error", err.Error()).Warn("Failed to apply labels")
		}
	}
	return pr.GetHTMLURL(), nil
}
