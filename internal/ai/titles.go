package ai

import (
	"context"
	"errors"
	"strings"
)

const titlePrompt = "You are to summarize the text that is given to you in as little words as possible. " +
	"The summary will be the title of a social media post so try to make it make sense. DO NOT EXCEED 6 words"

const maxTitleWords = 6

// TitleGenerator writes short titles for prayer requests.
type TitleGenerator struct {
	client *Client
}

func NewTitleGenerator(client *Client) *TitleGenerator {
	return &TitleGenerator{client: client}
}

// Title summarizes text. Replies longer than six words are cut down and
// surrounding quotes are removed.
func (g *TitleGenerator) Title(ctx context.Context, text string) (string, error) {
	reply, err := g.client.Complete(ctx, titlePrompt, strings.TrimSpace(text), 32)
	if err != nil {
		return "", err
	}

	title := cleanTitle(reply)
	if title == "" {
		return "", errors.New("empty title generated")
	}
	return title, nil
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'“”")
	s = strings.TrimRight(s, ".")

	words := strings.Fields(s)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return strings.Join(words, " ")
}
