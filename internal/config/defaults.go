package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	peerIDPrefix   = "-BC0001-"
	port           = 6881
	dialTimeout    = 5 * time.Second
	peerTimeout    = 30 * time.Second
	trackerTimeout = 15 * time.Second
	udpTimeout     = 5 * time.Second
	maxRetries     = 3
	retryDelay     = 2 * time.Second
	maxPeers       = 5
)

var (
	downloadDir = xdg.UserDirs.Download
	historyPath = filepath.Join(xdg.DataHome, appName, "history.db")
)
