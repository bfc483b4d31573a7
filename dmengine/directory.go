// Copyright © 2017 DataMovement Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package dmengine

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/datamovement/dmcore/checkpoint"
	"github.com/datamovement/dmcore/common"
	"github.com/datamovement/dmcore/continuation"
	"github.com/datamovement/dmcore/enumerate"
	"github.com/datamovement/dmcore/location"
	"github.com/datamovement/dmcore/transfer"
)

// DirectoryOptions configures a tree transfer shared by UploadDirectory,
// DownloadDirectory and CopyDirectory.
type DirectoryOptions struct {
	Overwrite bool
	BlobType  common.BlobType

	SearchPattern string
	Recursive     bool
	FollowSymlink bool
	Delimiter     string

	// Hierarchical selects transfer.HierarchicalDirectoryTransfer's
	// producer/consumer crawl instead of the default transfer.FlatDirectoryTransfer,
	// trading simplicity for the ability to resume from a specific sub-directory via
	// Seed and to checkpoint per-level progress via OnSubDirProgress.
	Hierarchical bool

	// Seed resumes a Hierarchical transfer from previously journaled sub-directory
	// levels; ignored in flat mode.
	Seed []transfer.SubDirSeed
	// Token resumes a flat transfer's single enumerator from a previously journaled
	// continuation token; ignored in hierarchical mode.
	Token continuation.Token

	// OnSubDirProgress is invoked after each level is fully enumerated in
	// hierarchical mode; see transfer.HierarchicalDirectoryTransfer.
	OnSubDirProgress func(relPath string, token continuation.Token)

	// Journal, when set, gives a Hierarchical transfer durable, file-backed
	// sub-directory resumability: Seed is drained from it automatically (any
	// caller-supplied Seed is used instead, for a caller that manages its own
	// journal lifecycle) and every discovered or completed level is appended back
	// to it. Ignored in flat mode, and ignored for the per-file chunk-level
	// progress of individual transfers within the directory, which stays
	// in-memory-only (see DESIGN.md).
	Journal *checkpoint.Journal

	MaxConcurrency    int
	BlockSizeOverride int64
	StoreContentMD5   bool

	Credentials    azcore.TokenCredential
	RequestOptions location.RequestOptions

	ShouldTransferCallback  transfer.ShouldTransferFunc
	ShouldOverwriteCallback transfer.ShouldOverwriteFunc
}

// UploadDirectory copies every file under sourceDir to destContainerURI/destPrefix.
func (m *Manager) UploadDirectory(ctx context.Context, sourceDir, destContainerURI, destPrefix string, opts DirectoryOptions) error {
	source := location.LocalDirectory(sourceDir)
	dest := location.RemoteBlobDirectory(destContainerURI, destPrefix, opts.Credentials, opts.RequestOptions)
	return m.runDirectory(ctx, source, dest, common.ETransferMethod.SyncCopy(), opts)
}

// DownloadDirectory copies every blob under sourceContainerURI/sourcePrefix to destDir.
func (m *Manager) DownloadDirectory(ctx context.Context, sourceContainerURI, sourcePrefix, destDir string, opts DirectoryOptions) error {
	source := location.RemoteBlobDirectory(sourceContainerURI, sourcePrefix, opts.Credentials, opts.RequestOptions)
	dest := location.LocalDirectory(destDir)
	return m.runDirectory(ctx, source, dest, common.ETransferMethod.SyncCopy(), opts)
}

// CopyDirectory copies every blob under sourceContainerURI/sourcePrefix to
// destContainerURI/destPrefix entirely server-side.
func (m *Manager) CopyDirectory(ctx context.Context, sourceContainerURI, sourcePrefix, destContainerURI, destPrefix string, sync bool, opts DirectoryOptions) error {
	source := location.RemoteBlobDirectory(sourceContainerURI, sourcePrefix, opts.Credentials, opts.RequestOptions)
	dest := location.RemoteBlobDirectory(destContainerURI, destPrefix, opts.Credentials, opts.RequestOptions)
	method := common.ETransferMethod.ServiceSideAsyncCopy()
	if sync {
		method = common.ETransferMethod.ServiceSideSyncCopy()
	}
	return m.runDirectory(ctx, source, dest, method, opts)
}

// runDirectory is the shared body behind the three *Directory entry points:
// register the (source root, dest root) pair, pick flat or hierarchical traversal,
// and drive it to completion through the manager's shared Scheduler and a
// freshly built ListingScheduler (see Manager.newListingScheduler).
func (m *Manager) runDirectory(ctx context.Context, source, dest location.Location, method common.TransferMethod, opts DirectoryOptions) error {
	if err := source.Validate(); err != nil {
		return common.WrapTransferError(common.EErrorCode.PathCustomValidationFailed(), err, "source location")
	}
	if err := dest.Validate(); err != nil {
		return common.WrapTransferError(common.EErrorCode.PathCustomValidationFailed(), err, "destination location")
	}

	key := common.NewTransferKey(source.Identity(), dest.Identity())

	srcRec, err := checkpoint.EncodeLocation(source)
	if err != nil {
		return err
	}
	dstRec, err := checkpoint.EncodeLocation(dest)
	if err != nil {
		return err
	}
	entry, err := m.register(key, checkpoint.TransferRecord{
		Source:      srcRec,
		Destination: dstRec,
		Method:      method,
		Status:      common.ETransferStatus.NotStarted(),
		Overwrite:   opts.Overwrite,
	})
	if err != nil {
		return err
	}
	defer m.unregister(key)

	sourceIsLocal := source.Kind == common.ELocation.LocalDirectory()
	destIsLocal := dest.Kind == common.ELocation.LocalDirectory()
	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = "/"
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = m.cfg.ParallelOperations
	}

	buildTransfer := func(e enumerate.Entry, destPath string) *transfer.SingleObjectTransfer {
		sot := transfer.New(
			locationForEntry(source, e, opts.BlobType),
			locationForDestPath(dest, destPath, opts.BlobType),
			method, opts.BlobType, opts.Overwrite,
		)
		sot.Client = m.client
		sot.Pool = m.pool
		sot.Progress = entry.Progress.NewChild()
		sot.BlockSizeOverride = opts.BlockSizeOverride
		sot.StoreContentMD5 = opts.StoreContentMD5
		sot.ShouldTransferCallback = opts.ShouldTransferCallback
		sot.ShouldOverwriteCallback = opts.ShouldOverwriteCallback
		return sot
	}

	if opts.Hierarchical {
		newLevel, err := m.subLevelEnumerator(source, opts)
		if err != nil {
			return err
		}
		listing := m.newListingScheduler(ctx, sourceIsLocal, destIsLocal)
		ht := transfer.NewHierarchicalDirectoryTransfer(transfer.HierarchicalDirectoryTransfer{
			NewLevelEnumerator:     newLevel,
			BuildTransfer:          buildTransfer,
			SourceIsLocal:          sourceIsLocal,
			DestIsLocal:            destIsLocal,
			Delimiter:              delimiter,
			Scheduler:              m.scheduler,
			Listing:                listing,
			MaxTransferConcurrency: maxConcurrency,
			OnSubDirProgress:       opts.OnSubDirProgress,
			Progress:               entry.Progress,
		})

		seed := opts.Seed
		if opts.Journal != nil {
			ht.OnSubDirDiscovered, ht.OnSubDirProgress = journalSubDirCallbacks(opts.Journal, opts.OnSubDirProgress)
			if seed == nil {
				seed, err = seedFromJournal(opts.Journal)
				if err != nil {
					return err
				}
			}
		}
		return ht.Run(ctx, seed)
	}

	en, err := m.rootEnumerator(source, opts)
	if err != nil {
		return err
	}
	ft := &transfer.FlatDirectoryTransfer{
		Enumerator:     en,
		BuildTransfer:  buildTransfer,
		SourceIsLocal:  sourceIsLocal,
		DestIsLocal:    destIsLocal,
		Delimiter:      delimiter,
		Scheduler:      m.scheduler,
		MaxConcurrency: maxConcurrency,
	}
	return ft.Run(ctx)
}

func (m *Manager) rootEnumerator(source location.Location, opts DirectoryOptions) (enumerate.Enumerator, error) {
	switch source.Kind {
	case common.ELocation.LocalDirectory():
		return enumerate.NewLocalEnumerator(source.Path, opts.SearchPattern, opts.Recursive, opts.FollowSymlink, opts.Token)
	case common.ELocation.RemoteBlobDirectory():
		delimiter := opts.Delimiter
		if delimiter == "" {
			delimiter = "/"
		}
		return enumerate.NewBlobEnumerator(m.client, source.ContainerURI, source.Prefix, delimiter, opts.SearchPattern, opts.Recursive, opts.Token), nil
	default:
		return nil, common.NewTransferError(common.EErrorCode.PathCustomValidationFailed(), nil)
	}
}

func (m *Manager) subLevelEnumerator(source location.Location, opts DirectoryOptions) (transfer.NewSubLevelEnumerator, error) {
	switch source.Kind {
	case common.ELocation.LocalDirectory():
		return transfer.LocalSubLevelEnumerator(source.Path, opts.SearchPattern, opts.FollowSymlink), nil
	case common.ELocation.RemoteBlobDirectory():
		return transfer.BlobSubLevelEnumerator(m.client, source.ContainerURI, source.Prefix, opts.SearchPattern), nil
	default:
		return nil, common.NewTransferError(common.EErrorCode.PathCustomValidationFailed(), nil)
	}
}

// locationForEntry builds the per-file source location for an enumerated entry.
// Entry.FullPath is always already the complete path/blob-name (both
// enumerate.LocalEnumerator and enumerate.BlobEnumerator compute it that way, and
// HierarchicalDirectoryTransfer's per-level enumerators inherit the same property
// since each level's own enumerator is rooted at that level's actual location), so
// no prefix arithmetic is needed here.
func locationForEntry(root location.Location, e enumerate.Entry, blobType common.BlobType) location.Location {
	switch root.Kind {
	case common.ELocation.LocalDirectory():
		return location.LocalFile(e.FullPath, e.RelPath)
	case common.ELocation.RemoteBlobDirectory():
		return location.RemoteBlob(root.ContainerURI+"/"+strings.TrimPrefix(e.FullPath, "/"), blobType, root.Credentials, root.RequestOptions)
	default:
		return location.Location{}
	}
}

// locationForDestPath builds the per-file destination location from a directory
// root and a name-resolved destination path (transfer.ResolveDestinationPath's
// output: OS-separated when root is local, "/"-separated when root is remote).
func locationForDestPath(root location.Location, destPath string, blobType common.BlobType) location.Location {
	switch root.Kind {
	case common.ELocation.LocalDirectory():
		full := filepath.Join(root.Path, destPath)
		return location.LocalFile(full, destPath)
	case common.ELocation.RemoteBlobDirectory():
		return location.RemoteBlob(joinBlobPath(root.ContainerURI, root.Prefix, destPath), blobType, root.Credentials, root.RequestOptions)
	default:
		return location.Location{}
	}
}

func joinBlobPath(containerURI, prefix, rel string) string {
	containerURI = strings.TrimSuffix(containerURI, "/")
	full := strings.TrimSuffix(prefix, "/")
	if rel != "" {
		if full != "" {
			full += "/"
		}
		full += rel
	}
	if full == "" {
		return containerURI
	}
	return containerURI + "/" + full
}
