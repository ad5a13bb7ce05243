package main

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beyonddream/angr/internal/archprofile"
	"github.com/beyonddream/angr/internal/boundary"
	"github.com/beyonddream/angr/internal/controller"
	"github.com/beyonddream/angr/internal/ir"
	"github.com/beyonddream/angr/internal/ir/arm64lift"
	glog "github.com/beyonddream/angr/internal/log"
	"github.com/beyonddream/angr/internal/loader"
	"github.com/beyonddream/angr/internal/pagecache"
)

// nextSessionKey hands out distinct page-cache session keys, so two
// simunicorn invocations against different binaries (or the same
// binary run concurrently by `batch`) never see each other's cache.
var nextSessionKey atomic.Uint64

// session bundles a loaded image with the boundary driving it, keyed
// by a fresh per-run correlation ID so logs from many simultaneous
// simunicorn invocations can be demuxed.
type session struct {
	key    uint64
	img    *loader.Image
	runID  uuid.UUID
	logger *glog.Logger
	bound  *boundary.Boundary
}

func loadProfile(name string) (*archprofile.Profile, error) {
	reg, err := archprofile.DefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("load architecture profiles: %w", err)
	}
	p, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown architecture profile %q (known: %v)", name, reg.Names())
	}
	return p, nil
}

// openSession loads binaryPath, seeds a page cache for it, and wires
// a controller over it. Only the "arm64" profile gets this CLI's
// best-effort arm64lift.Lift wired in as the Lifter; other profiles
// still load and seed correctly, but Start will stop on the first
// block with VexLiftFailed since their Lifter always returns an error.
func openSession(binaryPath, profileName string) (*session, error) {
	profile, err := loadProfile(profileName)
	if err != nil {
		return nil, err
	}

	img, err := loader.Load(binaryPath, loader.DefaultBase)
	if err != nil {
		return nil, fmt.Errorf("load ELF: %w", err)
	}

	runID := uuid.New()
	base := glog.L
	if base == nil {
		base = glog.New(false)
	}
	logger := base.WithCategory("simunicorn")
	logger.Logger = logger.Logger.With(zap.String("run_id", runID.String()))

	key := nextSessionKey.Add(1)
	img.SeedPageCache(pagecache.ForSession(key))

	var lifter controller.Lifter
	if profile.Name == "arm64" {
		lifter = arm64CacheLifter(key)
	} else {
		lifter = func(addr uint64) (*ir.Block, error) {
			return nil, fmt.Errorf("simunicorn: no lifter wired for architecture %q", profile.Name)
		}
	}

	b, err := boundary.New(key, profile, lifter, logger)
	if err != nil {
		return nil, fmt.Errorf("create boundary: %w", err)
	}

	return &session{key: key, img: img, runID: runID, logger: logger, bound: b}, nil
}

// arm64CacheLifter returns a Lifter that decodes guest bytes straight
// out of the page cache for sessionKey, the same cache openSession
// just seeded — there's no separate "loaded binary" store once the
// controller starts stepping.
func arm64CacheLifter(sessionKey uint64) controller.Lifter {
	cache := pagecache.ForSession(sessionKey)
	return func(addr uint64) (*ir.Block, error) {
		return arm64lift.Lift(addr, func(a uint64, size int) ([]byte, error) {
			buf := make([]byte, size)
			if !cache.Read(a, buf) {
				return nil, fmt.Errorf("simunicorn: 0x%x not in page cache", a)
			}
			return buf, nil
		})
	}
}

func (s *session) Close() error {
	err := s.bound.Destroy()
	pagecache.ReleaseSession(s.key)
	return err
}
