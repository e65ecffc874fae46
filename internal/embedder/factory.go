package embedder

import (
	"context"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

// Kind identifies which embedder a project was created with. A
// project's dimension is frozen the first time it is indexed, so its
// Kind can never change afterward: a local-mode project stays on the
// local embedder even if a remote endpoint later becomes reachable,
// and vice versa.
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
)

// New builds the embedder for a project. A project already frozen to
// KindLocal always gets the local embedder. Otherwise, if remote is
// non-empty it is tried first; construction failures fall back to the
// local embedder only when existingKind is empty (new project).
// A project already frozen to KindRemote that can no longer reach its
// endpoint fails outright rather than silently degrading its vector
// space.
func New(ctx context.Context, remote *RemoteConfig, existingKind Kind) (Embedder, Kind, error) {
	if remote != nil && existingKind != KindLocal {
		e, err := NewRemoteEmbedder(*remote)
		if err == nil {
			return e, KindRemote, nil
		}
		if existingKind == KindRemote {
			return nil, "", ragerrors.Fatal("project is frozen to a remote embedder that is no longer reachable", err)
		}
		if existingKind != "" && existingKind != KindLocal {
			return nil, "", ragerrors.Fatal("unknown embedder kind recorded for project", nil)
		}
		// existingKind is "" (new project) or KindLocal: fall through to local.
	} else if existingKind == KindRemote {
		return nil, "", ragerrors.Fatal("project is frozen to a remote embedder but none was configured", nil)
	}

	_ = ctx
	return NewLocalEmbedder(), KindLocal, nil
}
