package screener

import (
	"github.com/vorth-network/vigil/screener/engine"
	"github.com/vorth-network/vigil/screener/namematch"
	"github.com/vorth-network/vigil/screener/policy"
	"github.com/vorth-network/vigil/screener/registry"
)

type Engine = engine.Engine
type Executor = engine.Executor
type JoinEvent = engine.JoinEvent
type Outcome = engine.Outcome
type ActionResult = engine.ActionResult

type BannedIdentity = registry.BannedIdentity
type Registry = registry.Registry
type Access = registry.Access

type ServerPolicy = policy.ServerPolicy
type ActionSet = policy.ActionSet

type Match = namematch.Match
type Index = namematch.Index

var (
	ErrMissingPermissions = engine.ErrMissingPermissions
	ErrCorpusUnavailable  = registry.ErrCorpusUnavailable
	ErrInvalidAction      = policy.ErrInvalidAction
)
