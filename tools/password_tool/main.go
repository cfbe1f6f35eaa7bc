// Command password_tool creates an administrator or resets a password in the
// fleetmon database without going through the API.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fleetmon/internal/store"
	"fleetmon/internal/utils"

	"golang.org/x/term"
)

// minimalConfig models just the portion of fleetmon.json we need (root_path)
type minimalConfig struct {
	Paths struct {
		RootPath string `json:"root_path"`
	} `json:"paths"`
}

func main() {
	configPath := flag.String("config", "fleetmon.json", "Path to fleetmon.json")
	username := flag.String("username", "admin", "Username to update or create")
	password := flag.String("password", "", "New password (leave blank to type securely)")
	tenant := flag.Int("tenant", 1, "Tenant id for newly created administrators")
	phone := flag.String("phone", "", "Alert phone for newly created administrators")
	email := flag.String("email", "", "Alert email for newly created administrators")
	flag.Parse()

	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "username cannot be empty")
		os.Exit(1)
	}

	cfgPath, err := filepath.Abs(strings.TrimSpace(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to resolve config path: %v\n", err)
		os.Exit(1)
	}

	rootPath, err := loadRootPath(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if rootPath == "" {
		fmt.Fprintln(os.Stderr, "root_path is not set in config; set it or pass --config pointing to the correct file")
		os.Exit(1)
	}

	paths := utils.NewPaths(rootPath)
	db, err := store.Open(paths.DatabaseFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	pwd, err := resolvePassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "password error: %v\n", err)
		os.Exit(1)
	}

	if err := db.SetAdminPassword(*username, pwd); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if _, createErr := db.CreateAdmin(*tenant, *username, pwd, *phone, *email); createErr != nil {
				fmt.Fprintf(os.Stderr, "failed to create administrator: %v\n", createErr)
				os.Exit(1)
			}
			fmt.Printf("Created administrator %s (tenant %d).\n", *username, *tenant)
		} else {
			fmt.Fprintf(os.Stderr, "failed to update password: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("Updated password for %s.\n", *username)
	}

	fmt.Printf("database: %s\n", paths.DatabaseFile())
}

func loadRootPath(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", err
	}
	var cfg minimalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", err
	}
	return strings.TrimSpace(cfg.Paths.RootPath), nil
}

func resolvePassword(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed != "" {
		if len(trimmed) < 8 {
			return "", fmt.Errorf("password must be at least 8 characters")
		}
		return trimmed, nil
	}

	first, err := promptPassword("Enter new password: ")
	if err != nil {
		return "", err
	}
	second, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	return first, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	text, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
