// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.7.19
//

// Package wifiscan discovers nearby access points over nl80211 so
// their identities can be paired with ranging and received power
// readings collected elsewhere.
package wifiscan

import (
	"context"
	"fmt"
	"time"

	"github.com/mdlayher/wifi"
	"github.com/sirupsen/logrus"
)

const (
	scanTimeout = 10 * time.Second // Per-interface scan trigger timeout
	scanSettle  = 2 * time.Second  // Wait before collecting results
)

// Network is one access point seen during a scan. nl80211 scan
// results carry no received signal strength, so a reading must pair
// the identity reported here with an externally measured level.
type Network struct {
	BSSID     string `json:"bssid"`
	SSID      string `json:"ssid"`
	Interface string `json:"interface"`
	Frequency int    `json:"frequency"` // [MHz]
}

// Scanner lists access points visible to the local wireless
// interfaces
type Scanner struct {
	client *wifi.Client
	log    *logrus.Logger
}

// New opens the nl80211 connection
func New(logger *logrus.Logger) (*Scanner, error) {
	client, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("wifi client: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scanner{client: client, log: logger}, nil
}

// Close releases the nl80211 connection
func (s *Scanner) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Validate checks that at least one wireless interface is available
func (s *Scanner) Validate() error {
	ifis, err := s.client.Interfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}
	if len(ifis) == 0 {
		return fmt.Errorf("no wireless interfaces found")
	}
	for _, ifi := range ifis {
		s.log.WithFields(logrus.Fields{
			"name": ifi.Name,
			"type": ifi.Type.String(),
		}).Debug("wireless interface")
	}
	return nil
}

// Networks triggers a scan on every wireless interface and collects
// the access points seen. Interfaces that refuse to scan are skipped.
func (s *Scanner) Networks(ctx context.Context) ([]Network, error) {
	ifis, err := s.client.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	if len(ifis) == 0 {
		return nil, fmt.Errorf("no wireless interfaces found")
	}

	var nets []Network
	for _, ifi := range ifis {
		scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
		err := s.client.Scan(scanCtx, ifi)
		cancel()
		if err != nil {
			s.log.WithError(err).WithField("interface", ifi.Name).Warn("scan failed, skipping interface")
			continue
		}

		// Results trickle in after the trigger returns
		select {
		case <-time.After(scanSettle):
		case <-ctx.Done():
			return nets, ctx.Err()
		}

		bssList, err := s.client.AccessPoints(ifi)
		if err != nil {
			s.log.WithError(err).WithField("interface", ifi.Name).Warn("no scan results from interface")
			continue
		}

		for _, bss := range bssList {
			bssid := bss.BSSID.String()
			if bssid == "" || bssid == "00:00:00:00:00:00" {
				continue
			}
			nets = append(nets, Network{
				BSSID:     bssid,
				SSID:      bss.SSID,
				Interface: ifi.Name,
				Frequency: bss.Frequency,
			})
			s.log.WithFields(logrus.Fields{
				"bssid": bssid,
				"ssid":  bss.SSID,
			}).Debug("access point")
		}
	}

	if len(nets) == 0 {
		return nil, fmt.Errorf("no access points found")
	}
	return nets, nil
}
