package main

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"mediarepo/internal/api"
	"mediarepo/internal/ingest"
	"mediarepo/internal/repo"
	"mediarepo/internal/store"
)

// source is the read side shared by the daemon API and the local store.
type source interface {
	ListJobs(ctx context.Context, statuses []string) ([]api.Job, error)
	GetJob(ctx context.Context, id string) (*api.Job, error)
	ListRepos(ctx context.Context) ([]repo.Summary, error)
	GetRepo(ctx context.Context, id string) (*repo.Repository, error)
	ExportRepo(ctx context.Context, id string) ([]byte, error)
}

type daemonSource struct {
	client *api.Client
}

func (s daemonSource) ListJobs(ctx context.Context, statuses []string) ([]api.Job, error) {
	return s.client.ListJobs(ctx, statuses...)
}

func (s daemonSource) GetJob(ctx context.Context, id string) (*api.Job, error) {
	return s.client.GetJob(ctx, id)
}

func (s daemonSource) ListRepos(ctx context.Context) ([]repo.Summary, error) {
	return s.client.ListRepos(ctx)
}

func (s daemonSource) GetRepo(ctx context.Context, id string) (*repo.Repository, error) {
	return s.client.GetRepo(ctx, id)
}

func (s daemonSource) ExportRepo(ctx context.Context, id string) ([]byte, error) {
	return s.client.ExportRepo(ctx, id)
}

type storeSource struct {
	store *store.Store
}

func (s storeSource) ListJobs(ctx context.Context, statuses []string) ([]api.Job, error) {
	filters := make([]ingest.JobStatus, 0, len(statuses))
	for _, status := range statuses {
		filters = append(filters, ingest.JobStatus(status))
	}
	jobs, err := s.store.ListJobs(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(jobs), nil
}

func (s storeSource) GetJob(ctx context.Context, id string) (*api.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := api.FromJob(job)
	return &dto, nil
}

func (s storeSource) ListRepos(ctx context.Context) ([]repo.Summary, error) {
	return s.store.ListRepos(ctx)
}

func (s storeSource) GetRepo(ctx context.Context, id string) (*repo.Repository, error) {
	return s.store.GetRepo(ctx, id)
}

func (s storeSource) ExportRepo(ctx context.Context, id string) ([]byte, error) {
	r, err := s.store.GetRepo(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("render repository: %w", err)
	}
	return out, nil
}
