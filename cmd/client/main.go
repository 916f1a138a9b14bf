package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aeolun/epollchat/pkg/client"
	"github.com/aeolun/epollchat/pkg/client/ui"
)

func main() {
	// Command line flags
	serverAddr := flag.String("server", "127.0.0.1:8080", "Server address (host:port)")
	downloadDir := flag.String("download-dir", ".", "Directory for downloaded files")
	logPath := flag.String("log", "", "Write connection debug log to this file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <username>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	username := flag.Arg(0)

	// The UI owns the terminal, so the log goes to a file or nowhere
	logger := log.New(io.Discard, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	conn, err := client.NewConnection(*serverAddr)
	if err != nil {
		log.Fatalf("Invalid server address: %v", err)
	}
	conn.SetLogger(logger)
	conn.SetDownloadDir(*downloadDir)

	if err := conn.Connect(); err != nil {
		log.Fatalf("Failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	if err := conn.Login(username); err != nil {
		log.Fatalf("Failed to log in: %v", err)
	}

	model := ui.NewModel(conn, username)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
