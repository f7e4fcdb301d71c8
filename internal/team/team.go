// Package team implements the team pool and splitting operations
// layered on top of a runtime.Plugin's team primitives: a
// fixed-capacity pool of team slots (the psync_pool_avail bitmap's
// role), team_split_strided/team_split_2d, team_destroy, and
// team_translate_pe.
package team

import (
	"fmt"
	"sync"

	"github.com/ishmem-go/ishmem/internal/constants"
	"github.com/ishmem-go/ishmem/internal/runtime"
)

// Team is a handle to one team, alive until Destroy.
type Team struct {
	ID int
}

// World, Shared, and Node are the three predefined, indestructible
// teams every PE is a member of at Init.
var (
	World  = Team{ID: runtime.TeamWorld}
	Shared = Team{ID: runtime.TeamShared}
	Node   = Team{ID: runtime.TeamNode}
)

// Config mirrors the team_config_t a caller may pre-populate before a
// split to request per-team resources. NumContexts is the only field
// the contract defines; zero means "no preference".
type Config struct {
	NumContexts int
}

// Pool tracks how many dynamically-split teams are live, enforcing the
// same fixed capacity a psync_pool_avail bitmap enforces. Exhausting
// it is a recoverable error, not fatal. It also records the Config
// each dynamic team was split with, for GetConfig.
type Pool struct {
	mu      sync.Mutex
	max     int
	active  int
	configs map[int]Config
}

// NewPool creates a Pool with the given capacity, defaulting to
// constants.DefaultTeamsMax when max is 0.
func NewPool(max int) *Pool {
	if max == 0 {
		max = constants.DefaultTeamsMax
	}
	if max < constants.MinTeamsMax {
		max = constants.MinTeamsMax
	}
	return &Pool{max: max, configs: map[int]Config{}}
}

func (p *Pool) reserve() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active >= p.max {
		return fmt.Errorf("team: pool exhausted (max %d teams)", p.max)
	}
	p.active++
	return nil
}

func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active > 0 {
		p.active--
	}
}

// Split creates a strided subteam of parent: size members starting at
// parent-relative rank start, every stride ranks. Split does not
// AND-reduce membership eligibility or MAX-reduce the resulting status
// across participants, which a multi-process runtime does to keep every
// caller's view of success consistent: the loopback plugin's
// TeamSplitStrided returns without waiting for the other members, so a
// member whose call fails returns the error while the others' calls
// succeed, and a later collective on the new team then waits for the
// missing member forever. DESIGN.md records this as a divergence from
// the symmetric-error-return guarantee.
func Split(p *Pool, plugin runtime.Plugin, parent Team, start, stride, size int) (Team, error) {
	return SplitConfig(p, plugin, parent, start, stride, size, Config{})
}

// SplitConfig is Split with a caller-populated Config recorded against
// the new team, retrievable via GetConfig.
func SplitConfig(p *Pool, plugin runtime.Plugin, parent Team, start, stride, size int, cfg Config) (Team, error) {
	if err := p.reserve(); err != nil {
		return Team{}, err
	}
	id, err := plugin.TeamSplitStrided(parent.ID, start, stride, size)
	if err != nil {
		p.release()
		return Team{}, err
	}
	p.mu.Lock()
	p.configs[id] = cfg
	p.mu.Unlock()
	return Team{ID: id}, nil
}

// GetConfig returns the Config t was split with. Predefined teams (and
// any team split without one) report the zero Config.
func GetConfig(p *Pool, t Team) Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configs[t.ID]
}

// Split2D splits parent into an xrange-wide team and its complementary
// "column" team, the way team_split_2d partitions a parent team into a
// grid. This implementation clamps the X dimension to
// min(xrange, parentSize) and derives the Y dimension from what
// remains, rather than rejecting a non-divisible split outright: a
// clamped grid (the last X-row, and the Y-columns that end in it,
// shorter than the others) is more useful to a
// caller than a hard failure for a case that is otherwise
// implementation-defined.
func Split2D(p *Pool, plugin runtime.Plugin, parent Team, xrange int) (x, y Team, err error) {
	parentSize := plugin.TeamNPEs(parent.ID)
	if xrange <= 0 {
		return Team{}, Team{}, fmt.Errorf("team: team_split_2d xrange must be positive, got %d", xrange)
	}
	if xrange > parentSize {
		xrange = parentSize
	}

	// This PE's flat index within parent determines which X-row and
	// Y-column it lands in.
	myRank := plugin.TeamTranslatePe(runtime.TeamWorld, plugin.MyPE(), parent.ID)
	if myRank < 0 {
		return Team{}, Team{}, fmt.Errorf("team: pe not a member of parent team %d", parent.ID)
	}
	xStart := (myRank / xrange) * xrange
	xSize := xrange
	if xStart+xSize > parentSize {
		xSize = parentSize - xStart
	}
	xTeam, err := Split(p, plugin, parent, xStart, 1, xSize)
	if err != nil {
		return Team{}, Team{}, err
	}
	yStart := myRank % xrange
	ySize := (parentSize - yStart + xrange - 1) / xrange
	yTeam, err := Split(p, plugin, parent, yStart, xrange, ySize)
	if err != nil {
		Destroy(p, plugin, xTeam)
		return Team{}, Team{}, err
	}
	return xTeam, yTeam, nil
}

// Destroy releases t back to the pool. The predefined teams
// WORLD/SHARED/NODE are indestructible; destroying one is a no-op,
// without error.
func Destroy(p *Pool, plugin runtime.Plugin, t Team) error {
	if t.ID == World.ID || t.ID == Shared.ID || t.ID == Node.ID {
		return nil
	}
	if err := plugin.TeamDestroy(t.ID); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.configs, t.ID)
	p.mu.Unlock()
	p.release()
	return nil
}

// TranslatePe maps srcPE's rank in src to its rank in dst, or -1 if
// srcPE is not a member of dst.
func TranslatePe(plugin runtime.Plugin, src Team, srcPE int, dst Team) int {
	return plugin.TeamTranslatePe(src.ID, srcPE, dst.ID)
}

// NPEs returns t's member count.
func NPEs(plugin runtime.Plugin, t Team) int { return plugin.TeamNPEs(t.ID) }

// MyPe returns the calling PE's rank within t, or -1 if it is not a
// member.
func MyPe(plugin runtime.Plugin, t Team) int {
	return plugin.TeamTranslatePe(runtime.TeamWorld, plugin.MyPE(), t.ID)
}
