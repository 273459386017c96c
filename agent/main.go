package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/Anshjain123/Code-N-Collab/session"
)

// Version is set at build time.
var Version = "0.0.0-local"

const usage = `Code-N-Collab editor.

Joins the room named in an editor address and edits its code together with
everyone else in the room. Without --server the server is taken from the
address, or found on the local network.

Usage:
    agent <address> [--server=<url>] [--prefs=<path>] [--log_dir=<dir>]
        [--compile_timeout=<duration>] [--verbosity=<level>]
    agent -h | --help
    agent --version

Examples:
    agent 'https://codencollab.dev/editor?room=abc123&name=alice'
    agent '?room=abc123&name=bob' --server=ws://localhost:8081

Options:
    -h --help                       Show this screen.
    --version                       Show version.
    --server=<url>                  Server base url, ws:// or http://.
    --prefs=<path>                  Preferences database.
    --log_dir=<dir>                 Directory for log files.
    --compile_timeout=<duration>    Give up on a run after this long [default: 30s].
    --verbosity=<level>             Log verbosity [default: 0].`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	// The terminal belongs to the shell; logs go to files.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "FATAL")
	if dir, _ := opts.String("--log_dir"); dir != "" {
		flag.Set("log_dir", dir)
	}
	if v, _ := opts.String("--verbosity"); v != "" {
		flag.Set("v", v)
	}
	defer glog.Flush()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		glog.Errorf("[agent]%v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run(opts docopt.Opts) error {
	address, _ := opts.String("<address>")
	params, err := session.ParseAddress(address)
	if err != nil {
		return err
	}
	if params.Room == "" {
		return fmt.Errorf("address %q names no room", address)
	}

	timeoutStr, _ := opts.String("--compile_timeout")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout <= 0 {
		return fmt.Errorf("bad --compile_timeout %q", timeoutStr)
	}

	server, _ := opts.String("--server")
	base, err := resolveServer(address, server)
	if err != nil {
		return err
	}
	if base == "" {
		fmt.Fprintln(os.Stderr, "looking for a server on the local network...")
		base, err = discover(context.Background(), 5*time.Second)
		if err != nil {
			return err
		}
	}

	prefsPath, _ := opts.String("--prefs")
	if prefsPath == "" {
		prefsPath = DefaultPrefsPath()
	}
	prefs, err := OpenPrefs(prefsPath)
	if err != nil {
		glog.Warningf("[agent]preferences disabled: %v", err)
		prefs = nil
	} else {
		defer prefs.Close()
	}

	s := newShell(shellConfig{
		Room:           params.Room,
		Name:           params.Name,
		CollabURL:      base + "/collab",
		SocketURL:      base + "/socket",
		CompileTimeout: timeout,
	}, prefs)
	p := tea.NewProgram(s, tea.WithAltScreen())
	s.loop.attach(p.Send)
	glog.Infof("[agent]joining %s room %q as %q", base, params.Room, params.Name)
	_, err = p.Run()
	return err
}

// resolveServer returns the websocket base url of the server: from
// server when given, else from the host of address. It returns "" when
// neither names a host.
func resolveServer(address, server string) (string, error) {
	raw := server
	if raw == "" {
		raw = address
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("bad server url %q: %w", raw, err)
	}
	if u.Host == "" {
		if server != "" {
			return "", fmt.Errorf("server url %q has no host", server)
		}
		return "", nil
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	base := url.URL{Scheme: u.Scheme, Host: u.Host}
	if server != "" {
		base.Path = strings.TrimSuffix(u.Path, "/")
	}
	return base.String(), nil
}
