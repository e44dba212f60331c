package main

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mangrove/pool"
)

type result struct {
	Service string
	Region  string
	Err     error
}

// probe reads every declared region of every service, one at a time.
func probe(g *pool.Group) []result {
	var results []result
	for _, service := range g.Services() {
		p, err := g.Service(service)
		if err != nil {
			results = append(results, result{Service: service, Err: err})
			continue
		}
		for _, region := range p.Regions() {
			_, err := p.Region(region)
			results = append(results, result{Service: service, Region: region, Err: err})
		}
	}
	return results
}

// report logs each result and returns the combined failures.
func report(results []result, logger *zap.Logger) error {
	var err error
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("region unreachable", zap.String("service", r.Service), zap.String("region", r.Region), zap.Error(r.Err))
			err = multierr.Append(err, fmt.Errorf("%s/%s: %w", r.Service, r.Region, r.Err))
			continue
		}
		logger.Info("region reachable", zap.String("service", r.Service), zap.String("region", r.Region))
	}
	return err
}
