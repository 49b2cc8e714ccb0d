package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Travis-Britz/cfddns"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// resolveToken returns the configured token, falling back to the key file.
// A missing key file is created interactively when stdin is a terminal.
func resolveToken(cfg Config, logger logrus.FieldLogger) (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}
	if cfg.KeyFile == "" {
		return "", errors.New("cloudflare API token not configured: set CLOUDFLARE_API_TOKEN or key_file")
	}
	if !fileExists(cfg.KeyFile) {
		logger.Infof("key file \"%s\" does not exist", cfg.KeyFile)
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return "", fmt.Errorf("cloudflare API token not configured and key file \"%s\" does not exist", cfg.KeyFile)
		}
		if err := runSetup(cfg.KeyFile, logger); err != nil {
			return "", fmt.Errorf("setup: %w", err)
		}
	}
	if err := verifyPermissions(cfg.KeyFile); err != nil {
		return "", err
	}
	key, err := readKey(cfg.KeyFile)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("key file \"%s\" is empty", cfg.KeyFile)
	}
	logger.Debug("successfully read key from key file")
	return key, nil
}

func runSetup(keyFile string, logger logrus.FieldLogger) error {
	logger.Info("running setup")
	time.Sleep(200 * time.Millisecond) // dirty timer hack to try to get stderr and stdout output lines to display in order
	fmt.Printf("Enter Cloudflare API Token: \n")
	bytekey, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := strings.TrimSpace(string(bytekey))

	logger.Info("verifying token...")
	if err := cfddns.VerifyToken(context.Background(), key); err != nil {
		return err
	}
	logger.Info("token verified successfully")

	logger.Infof("creating key file at \"%s\"", keyFile)
	f, err := os.OpenFile(keyFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", keyFile, err)
	}
	defer f.Close()
	fmt.Fprintln(f, key)
	logger.Infof("token written to \"%s\"", keyFile)
	return nil
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return strings.TrimSpace(string(keyb)), nil
}

func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}

	return nil
}
