// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/tidwall/jsonc"
)

// ICEConfig holds the STUN and TURN servers a PeerConnection gathers
// candidates from. The zero value gathers host candidates only, which
// is enough for same-host and same-LAN consultations.
type ICEConfig struct {
	// Servers is tried in order during candidate gathering.
	Servers []webrtc.ICEServer
}

// iceFile is the on-disk form of an ICE config:
//
//	{
//	  // public STUN for reflexive candidates
//	  "servers": [
//	    {"urls": ["stun:stun.example.net:3478"]},
//	    {"urls": ["turn:turn.example.net:3478?transport=udp"],
//	     "username": "consult", "credential": "secret"},
//	  ],
//	}
type iceFile struct {
	Servers []struct {
		URLs       []string `json:"urls"`
		Username   string   `json:"username"`
		Credential string   `json:"credential"`
	} `json:"servers"`
}

// ParseICEConfig strips JSONC comments and trailing commas from data
// and converts the result to an ICEConfig.
func ParseICEConfig(data []byte) (ICEConfig, error) {
	var file iceFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return ICEConfig{}, fmt.Errorf("parsing ICE config: %w", err)
	}

	var config ICEConfig
	for index, server := range file.Servers {
		if len(server.URLs) == 0 {
			return ICEConfig{}, fmt.Errorf("ICE server %d has no urls", index)
		}
		for _, url := range server.URLs {
			isTURN := strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:")
			if isTURN && server.Username == "" {
				return ICEConfig{}, fmt.Errorf("ICE server %d: TURN url %q requires a username", index, url)
			}
		}
		config.Servers = append(config.Servers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return config, nil
}

// LoadICEConfig reads a JSONC ICE config file. An empty path returns
// the zero config.
func LoadICEConfig(path string) (ICEConfig, error) {
	if path == "" {
		return ICEConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ICEConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	config, err := ParseICEConfig(data)
	if err != nil {
		return ICEConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}
