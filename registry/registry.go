// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry talks to the framework's ServiceRegistry and
// Orchestrator core systems over HTTP. Only the registry client is
// functional; orchestration is still being worked out.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrNotImplemented marks the parts of the core-system surface this
// client does not speak yet.
var ErrNotImplemented = errors.New("not implemented")

const defaultTimeout = 10 * time.Second

// A System identifies one application system in the local cloud.
type System struct {
	SystemName string `json:"systemName"`
	Address    string `json:"address"`
	Port       uint16 `json:"port"`
}

// A Registration is one service offered by a provider system.
type Registration struct {
	ID                string            `json:"id,omitempty"`
	ServiceDefinition string            `json:"serviceDefinition"`
	Provider          System            `json:"providerSystem"`
	ServiceURI        string            `json:"serviceUri"`
	Interfaces        []string          `json:"interfaces,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// A Query asks the registry for providers of a service.
type Query struct {
	ServiceDefinition string   `json:"serviceDefinitionRequirement"`
	Interfaces        []string `json:"interfaceRequirements,omitempty"`
}

// Conf configures a core-system client.
type Conf struct {
	// BaseURL is the core system's root, e.g.
	// http://registry.arrowhead.org:8443.
	BaseURL string
	// Timeout bounds one HTTP exchange. Defaults to 10s.
	Timeout time.Duration
}

// A ServiceRegistry is an HTTP client for the service-registry core
// system.
type ServiceRegistry struct {
	conf Conf
	hc   *http.Client
}

// NewServiceRegistry returns a client for the registry at
// conf.BaseURL.
func NewServiceRegistry(conf Conf) *ServiceRegistry {
	if conf.Timeout == 0 {
		conf.Timeout = defaultTimeout
	}
	return &ServiceRegistry{
		conf: conf,
		hc:   &http.Client{Timeout: conf.Timeout},
	}
}

// Register announces a service. A missing ID is filled in with a
// fresh uuid and the stored registration is returned.
func (s *ServiceRegistry) Register(ctx context.Context, reg Registration) (*Registration, error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	var stored Registration
	if err := s.post(ctx, "/serviceregistry/register", reg, &stored); err != nil {
		return nil, fmt.Errorf("registering %s: %w", reg.ServiceDefinition, err)
	}
	return &stored, nil
}

// Unregister withdraws a service by definition and provider.
func (s *ServiceRegistry) Unregister(ctx context.Context, reg Registration) error {
	q := url.Values{
		"service_definition": {reg.ServiceDefinition},
		"system_name":        {reg.Provider.SystemName},
		"address":            {reg.Provider.Address},
		"port":               {strconv.Itoa(int(reg.Provider.Port))},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.conf.BaseURL+"/serviceregistry/unregister?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("unregistering %s: %w", reg.ServiceDefinition, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unregistering %s: registry said %s", reg.ServiceDefinition, resp.Status)
	}
	return nil
}

// QueryServices asks for the providers matching a query.
func (s *ServiceRegistry) QueryServices(ctx context.Context, q Query) ([]Registration, error) {
	var result struct {
		ServiceQueryData []Registration `json:"serviceQueryData"`
	}
	if err := s.post(ctx, "/serviceregistry/query", q, &result); err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.ServiceDefinition, err)
	}
	return result.ServiceQueryData, nil
}

func (s *ServiceRegistry) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.conf.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("registry said %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// An Orchestrator will negotiate service connections between clouds.
type Orchestrator struct {
	conf Conf
}

// NewOrchestrator returns the orchestrator client shell.
func NewOrchestrator(conf Conf) *Orchestrator {
	return &Orchestrator{conf: conf}
}

// Orchestrate is not wired up yet; discovery goes through dnssd in
// the meantime.
func (o *Orchestrator) Orchestrate(ctx context.Context, requester System) ([]Registration, error) {
	return nil, fmt.Errorf("orchestration for %s: %w", requester.SystemName, ErrNotImplemented)
}
