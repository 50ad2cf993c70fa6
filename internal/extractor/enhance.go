/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/friendsincode/munin_post/internal/models"
)

// xCharLimit is the hard cap X enforces on post length, in characters.
const xCharLimit = 280

// EnhanceForPlatform renders a base message for one destination:
// LinkedIn gets the full message with a read-more link and all
// hashtags; X gets a truncated message that fits the 280-char cap
// with the link, and up to three hashtags only when they still fit.
// All X budgets are counted in runes, matching how the platform
// counts, and truncation never splits a rune.
func EnhanceForPlatform(message string, dest models.Destination, blogURL string, hashtags []string) string {
	switch dest {
	case models.DestinationLinkedIn:
		enhanced := message + "\n\nRead more: " + blogURL
		if len(hashtags) > 0 {
			enhanced += "\n\n" + joinHashtags(hashtags)
		}
		return enhanced

	case models.DestinationX:
		// Leave room for the URL plus separators. A URL so long it
		// leaves no room for any text drops out of the post entirely.
		budget := xCharLimit - utf8.RuneCountInString(blogURL) - 10
		if budget <= 0 {
			return TruncateRunes(message, xCharLimit)
		}
		message = TruncateRunes(message, budget)

		enhanced := message + "\n\n" + blogURL

		if len(hashtags) > 0 {
			tags := hashtags
			if len(tags) > 3 {
				tags = tags[:3]
			}
			hashtagStr := joinHashtags(tags)
			if utf8.RuneCountInString(enhanced)+utf8.RuneCountInString(hashtagStr)+2 <= xCharLimit {
				enhanced += "\n" + hashtagStr
			}
		}
		return enhanced
	}

	return message
}

// TruncateRunes cuts s to at most max runes, ending in "..." when a
// cut happens. The cut lands on a rune boundary so the result is
// always valid UTF-8.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func joinHashtags(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, "#"+strings.TrimPrefix(tag, "#"))
	}
	return strings.Join(parts, " ")
}
