// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolchain

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

// TagLister returns the tag names of a remote repository.
type TagLister interface {
	ListTags(ctx context.Context, url string) ([]string, error)
}

// GitTagLister lists tags with go-git's remote ref advertisement. Nothing
// is cloned.
type GitTagLister struct{}

// ListTags implements TagLister.
func (GitTagLister) ListTags(ctx context.Context, url string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{PeelingOption: git.IgnorePeeled})
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, fmt.Errorf("list tags of %s: %w", url, err)
	}

	var tags []string
	for _, ref := range refs {
		if ref.Name().IsTag() {
			tags = append(tags, ref.Name().Short())
		}
	}
	return tags, nil
}

// VersionsFromTags keeps the tags that parse as semantic versions and sorts
// them ascending. Tags such as "v1.2.3" are accepted.
func VersionsFromTags(tags []string) []semver.SemanticVersion {
	versions := make([]semver.SemanticVersion, 0, len(tags))
	for _, tag := range tags {
		v, err := semver.Parse(tag)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	slices.SortStableFunc(versions, semver.SemanticVersion.Compare)
	return versions
}
