package main

import (
	"fmt"
	"os"
	"strconv"

	"photovault/internal/client"
)

const usage = `photoctl - photovault command line client

Usage:
  photoctl <command> [args]

Commands:
  register <username>      create an account
  send <file-or-dir>       upload a photo, or every photo in a directory
  random <dest-file>       download a random photo
  stats                    show storage usage
  leave                    delete the account (run twice to confirm)

Environment:
  PHOTOVAULT_URL           server base URL (default http://localhost:8080)
  PHOTOVAULT_ID            numeric account ID (required)
  PHOTOVAULT_REPLY_TO      channel for asynchronous notices (optional)
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	baseURL := os.Getenv("PHOTOVAULT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	externalID, err := strconv.ParseInt(os.Getenv("PHOTOVAULT_ID"), 10, 64)
	if err != nil || externalID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: PHOTOVAULT_ID must be set to a positive number")
		os.Exit(1)
	}

	replyTo := os.Getenv("PHOTOVAULT_REPLY_TO")
	c := client.New(baseURL, externalID)

	switch cmd := args[0]; cmd {
	case "register":
		username := ""
		if len(args) > 1 {
			username = args[1]
		}
		result, err := c.Register(username)
		if err != nil {
			fail(err)
		}
		fmt.Println(result.Message)

	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: send needs a file or directory")
			os.Exit(1)
		}
		paths, err := client.CollectImages(args[1])
		if err != nil {
			fail(err)
		}
		for _, path := range paths {
			result, err := c.SendPhoto(path, replyTo)
			if err != nil {
				fail(fmt.Errorf("upload of %s failed: %w", path, err))
			}
			fmt.Printf("✓ %s -> %s (%d bytes)\n", path, result.Filename, result.SizeBytes)
		}

	case "random":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: random needs a destination file")
			os.Exit(1)
		}
		n, err := c.Random(args[1])
		if err != nil {
			fail(err)
		}
		fmt.Printf("✓ Saved %d bytes to %s\n", n, args[1])

	case "stats":
		stats, err := c.Stats()
		if err != nil {
			fail(err)
		}
		fmt.Printf("Photos:   %d\n", stats.Photos)
		fmt.Printf("Used:     %s\n", stats.UsedHuman)
		fmt.Printf("Capacity: %s\n", stats.CapacityHuman)

	case "leave":
		result, err := c.Leave(replyTo)
		if err != nil {
			fail(err)
		}
		fmt.Println(result.Message)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n%s", cmd, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
