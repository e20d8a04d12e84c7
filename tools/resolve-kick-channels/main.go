package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/john/chatoverlay/internal/config"
	"github.com/john/chatoverlay/internal/kick"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: resolve-kick-channels <channel1> [channel2] ...")
		fmt.Println("\nExample:")
		fmt.Println("  resolve-kick-channels paymoneywubby xqc")
		os.Exit(1)
	}

	channels := os.Args[1:]
	fmt.Printf("Resolving %d Kick channel(s)...\n\n", len(channels))

	resolver := kick.NewResolver()
	var resolved []config.KickChannelConfig
	failed := make(map[string]string)

	for _, channel := range channels {
		info, err := resolver.Resolve(context.Background(), channel)
		if err != nil {
			failed[channel] = err.Error()
			continue
		}
		resolved = append(resolved, config.KickChannelConfig{Slug: info.Slug, ChatroomID: info.Chatroom.ID})
	}

	if len(resolved) > 0 {
		fmt.Println("✓ Successfully resolved:")
		fmt.Println("---")
		for _, ch := range resolved {
			fmt.Printf("%s: %d\n", ch.Slug, ch.ChatroomID)
		}
		fmt.Println()
	}

	if len(failed) > 0 {
		fmt.Println("✗ Failed to resolve:")
		fmt.Println("---")
		for slug, err := range failed {
			fmt.Printf("%s: %s\n", slug, err)
		}
		fmt.Println()
	}

	if len(resolved) == 0 {
		os.Exit(1)
	}

	snippet, err := configSnippet(resolved)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render config snippet: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Add this to your config.yaml:")
	fmt.Println("---")
	fmt.Print(snippet)
}

// configSnippet renders the kick section of config.yaml
func configSnippet(channels []config.KickChannelConfig) (string, error) {
	out, err := yaml.Marshal(map[string]config.KickConfig{
		"kick": {Enabled: true, Channels: channels},
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
