package main

import (
	"os"
	"path/filepath"

	"beacon/internal/catalog"
	"beacon/internal/config"
	"beacon/internal/learn"
	"beacon/internal/providers"
	"beacon/internal/rank"
)

// app wires the core together: register, manager, stock providers.
type app struct {
	cfg      *config.Config
	register *learn.Register
	manager  *catalog.Manager
	metric   rank.Metric
}

func newApp(cfg *config.Config) *app {
	register := learn.NewRegister(cfg.Learning.DataDir)
	register.Load()

	manager := catalog.NewManager(catalog.ManagerConfig{
		CacheDir: cfg.Catalog.CacheDir,
		DataDir:  cfg.Catalog.DataDir,
		Rescan: catalog.RescanConfig{
			Startup:  cfg.GetRescanStartup(),
			Period:   cfg.GetRescanPeriod(),
			Campaign: cfg.GetRescanCampaign(),
			Workers:  cfg.Catalog.RescanWorkers,
		},
	})

	a := &app{
		cfg:      cfg,
		register: register,
		manager:  manager,
		metric:   rank.MetricByName(cfg.Ranking.Metric),
	}
	a.registerStock()
	return a
}

// registerStock adds the builtin providers, text providers and
// commands under the "builtin" owner.
func (a *app) registerStock() {
	var provs []catalog.Provider
	if home, err := os.UserHomeDir(); err == nil {
		dir := providers.NewDirectoryProvider(home, false)
		dir.OnChange = func(p *providers.DirectoryProvider) {
			a.manager.RescanNow(p, true)
		}
		provs = append(provs, dir)
	}
	provs = append(provs, providers.NewBookmarksProvider(
		filepath.Join(a.cfg.Catalog.DataDir, "bookmarks.yaml")))

	a.manager.Add("builtin", provs, true, false)
	a.manager.AddTextProviders("builtin", providers.BuiltinTextProviders())
	a.manager.AddCommands("builtin", providers.BuiltinCommands())
	a.manager.Initialize()
}

// shutdown runs the persistence sequence for non-controller paths.
func (a *app) shutdown() {
	a.manager.Finalize()
	_ = a.manager.SaveCache()
	_ = a.manager.SaveData()
	_ = a.register.Save()
}
