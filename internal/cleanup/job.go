package cleanup

import (
	"time"

	"dircrawl/internal/config"
	"dircrawl/internal/crawler"
	"dircrawl/internal/fsops"
)

// buildCrawler turns a configured job into a crawler. observe is attached to
// every mode after the job's own hooks.
func buildCrawler(fsys *fsops.FS, job config.Job, dryRun bool, now time.Time, observe crawler.Hooks) (*crawler.Crawler, error) {
	switch job.Mode {
	case config.ModeHunt:
		return crawler.NewDirectoryHunter(fsys, job.Root, job.DirectoryNames,
			crawler.WithDryRun(dryRun),
			crawler.WithHooks(observe),
		)
	case config.ModePurge:
		return crawler.New(fsys, job.Root,
			crawler.WithDryRun(dryRun),
			crawler.WithHooks(purgeHooks()),
			crawler.WithHooks(observe),
		)
	}
	return crawler.New(fsys, job.Root,
		crawler.WithDryRun(dryRun),
		crawler.WithFilters(jobFilters(job, now)),
		crawler.WithHooks(jobHooks(job)),
		crawler.WithHooks(observe),
	)
}

// purgeHooks empty the root and keep it.
func purgeHooks() crawler.Hooks {
	return crawler.Hooks{
		OnDirectoryHello: func(c *crawler.Crawler, dir fsops.Directory, sig *crawler.DirectorySignal) {
			if dir.FullName() == c.Root() {
				sig.RequestDelete(true, false)
			}
		},
	}
}

func jobFilters(job config.Job, now time.Time) crawler.Filters {
	f := crawler.Filters{
		DirectoriesOnly:        job.DirectoriesOnly,
		DirectorySearchPattern: job.DirectoryPattern,
		FileSearchPattern:      job.FilePattern,
	}
	if job.MinFileAgeDays > 0 {
		cutoff := now.Add(-job.MinFileAge())
		f.FileFilter = func(file fsops.File) bool {
			mod, err := file.ModTime()
			return err == nil && mod.Before(cutoff)
		}
	}
	return f
}

func jobHooks(job config.Job) crawler.Hooks {
	var h crawler.Hooks
	if job.DeleteMatchedDirectories {
		h.OnDirectoryFilterMatch = func(c *crawler.Crawler, dir fsops.Directory, sig *crawler.DirectorySignal) {
			// The root is never removed, only emptied.
			isRoot := dir.FullName() == c.Root()
			sig.RequestDelete(job.PreserveMatchedContents || isRoot, false)
		}
	}
	switch {
	case job.DeleteMatchedFiles:
		h.OnFileHello = func(c *crawler.Crawler, _ fsops.File, sig *crawler.FileSignal) {
			if !c.RecursiveDeleteMode() {
				sig.RequestDelete(false)
			}
		}
	case job.FileAction != "":
		h.OnFileHello = func(c *crawler.Crawler, _ fsops.File, sig *crawler.FileSignal) {
			if !c.RecursiveDeleteMode() {
				sig.SetAction(job.FileAction)
			}
		}
	}
	return h
}
