package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/keskad/traintastic-go/pkgs/decoders"
)

// maxForcedReuploads and forcedReuploadWindow bound the "always re-upload
// recent files" behaviour: the most recently modified local files, if
// touched within the window, are re-uploaded even when their size on the
// decoder already matches (covers edits that don't change file size).
const maxForcedReuploads = 5
const forcedReuploadWindow = 24 * time.Hour

type localSoundFile struct {
	Name    string
	Path    string
	SizeKB  int64
	ModTime time.Time
}

func listLocalSoundFiles(dir string) ([]localSoundFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dir, err)
	}

	files := make([]localSoundFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("cannot stat %q: %w", e.Name(), err)
		}
		files = append(files, localSoundFile{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			SizeKB:  info.Size() / 1024,
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// forcedReuploadSet picks the most recently modified files (up to
// maxForcedReuploads, modified within forcedReuploadWindow) for unconditional
// re-upload.
func forcedReuploadSet(files []localSoundFile) map[string]bool {
	sorted := make([]localSoundFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ModTime.After(sorted[j].ModTime) })

	cutoff := time.Now().Add(-forcedReuploadWindow)
	set := make(map[string]bool, maxForcedReuploads)
	for _, f := range sorted {
		if len(set) >= maxForcedReuploads {
			break
		}
		if f.ModTime.Before(cutoff) {
			continue
		}
		set[f.Name] = true
	}
	return set
}

// SyncSoundSlot compares localDir against the given sound slot on the
// decoder: files missing on the decoder are uploaded, files missing locally
// are deleted from the decoder, and files differing in size are
// re-uploaded. Unless withoutLast is set, the most recently modified local
// files are always re-uploaded regardless of size.
func (app *LocoApp) SyncSoundSlot(slot uint8, localDir string, dryRun, withoutLast bool, opts ...decoders.Option) error {
	rb := decoders.NewRailboxRB23xx(opts...)
	return app.syncSoundSlotOnce(rb, slot, localDir, dryRun, withoutLast)
}

func (app *LocoApp) syncSoundSlotOnce(rb *decoders.RailboxRB23xx, slot uint8, localDir string, dryRun, withoutLast bool) error {
	local, err := listLocalSoundFiles(localDir)
	if err != nil {
		return err
	}
	remote, err := rb.ListSoundSlot(slot)
	if err != nil {
		return err
	}

	remoteByName := make(map[string]decoders.RemoteFileInfo, len(remote))
	for _, r := range remote {
		remoteByName[r.Name] = r
	}

	forceReupload := map[string]bool{}
	if !withoutLast {
		forceReupload = forcedReuploadSet(local)
	}

	localNames := make(map[string]bool, len(local))
	for _, f := range local {
		localNames[f.Name] = true

		remoteInfo, onDevice := remoteByName[f.Name]
		if onDevice && remoteInfo.SizeKB == f.SizeKB && !forceReupload[f.Name] {
			continue
		}

		_, _ = app.P.Printf("upload %s (%s)\n", f.Name, humanize.Bytes(uint64(f.SizeKB)*1024))
		if dryRun {
			continue
		}
		if err := uploadSoundFile(rb, slot, f); err != nil {
			return err
		}
	}

	for name := range remoteByName {
		if localNames[name] {
			continue
		}
		_, _ = app.P.Printf("delete %s\n", name)
		if dryRun {
			continue
		}
		if err := rb.DeleteSoundFile(slot, name); err != nil {
			return err
		}
	}
	return nil
}

func uploadSoundFile(rb *decoders.RailboxRB23xx, slot uint8, f localSoundFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("cannot open %q: %w", f.Path, err)
	}
	defer file.Close()
	return rb.UploadSoundFile(slot, f.Name, file)
}

// WatchSoundSlot runs SyncSoundSlot once, then keeps watching localDir and
// re-syncs on every write/create/remove/rename event until the process is
// interrupted.
func (app *LocoApp) WatchSoundSlot(slot uint8, localDir string, dryRun, withoutLast bool, opts ...decoders.Option) error {
	rb := decoders.NewRailboxRB23xx(opts...)
	if err := app.syncSoundSlotOnce(rb, slot, localDir, dryRun, withoutLast); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(localDir); err != nil {
		return fmt.Errorf("cannot watch %q: %w", localDir, err)
	}

	log.WithField("dir", localDir).Info("watching for changes, press Ctrl+C to stop")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("event", event).Debug("local sound directory changed, re-syncing")
			if err := app.syncSoundSlotOnce(rb, slot, localDir, dryRun, withoutLast); err != nil {
				log.WithError(err).Error("sync failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("watcher error")
		}
	}
}
