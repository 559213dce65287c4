package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "print a running server's admin state",
		Flags: []cli.Flag{urlFlag},
		Action: func(c *cli.Context) error {
			return adminCall(c, http.MethodGet, "/admin/v1/state", 5*time.Second)
		},
	}
}

func snapshotRequest(c *cli.Context) error {
	path := "/admin/v1/snapshot"
	if c.Bool("all") {
		path += "?all=1"
	}
	return adminCall(c, http.MethodPost, path, 30*time.Second)
}

func adminCall(c *cli.Context, method, path string, timeout time.Duration) error {
	u := strings.TrimRight(strings.TrimSpace(c.String("url")), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
