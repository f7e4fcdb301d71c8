package ishmem

import "github.com/ishmem-go/ishmem/internal/team"

// Team is a handle to a team of PEs, alive until Destroy.
type Team = team.Team

// WorldTeam, SharedTeam, and NodeTeam are the three predefined,
// indestructible teams every PE belongs to after Init.
var (
	WorldTeam  = team.World
	SharedTeam = team.Shared
	NodeTeam   = team.Node
)

// TeamConfig carries caller-requested per-team resources, passed to
// TeamSplitStridedConfig and read back via TeamGetConfig.
type TeamConfig = team.Config

// TeamSplitStrided creates a strided subteam of parent: size members
// starting at parent-relative rank start, every stride ranks.
func (inst *Instance) TeamSplitStrided(parent Team, start, stride, size int) (Team, error) {
	t, err := team.Split(inst.pool, inst.plugin, parent, start, stride, size)
	return t, wrapErr("TeamSplitStrided", err)
}

// TeamSplitStridedConfig is TeamSplitStrided with a caller-populated
// TeamConfig recorded against the new team.
func (inst *Instance) TeamSplitStridedConfig(parent Team, start, stride, size int, cfg TeamConfig) (Team, error) {
	t, err := team.SplitConfig(inst.pool, inst.plugin, parent, start, stride, size, cfg)
	return t, wrapErr("TeamSplitStrided", err)
}

// TeamGetConfig returns the TeamConfig t was split with; predefined
// teams report the zero config.
func (inst *Instance) TeamGetConfig(t Team) TeamConfig {
	return team.GetConfig(inst.pool, t)
}

// TeamSplit2D splits parent into an xrange-wide team and its
// complementary column team.
func (inst *Instance) TeamSplit2D(parent Team, xrange int) (x, y Team, err error) {
	x, y, err = team.Split2D(inst.pool, inst.plugin, parent, xrange)
	return x, y, wrapErr("TeamSplit2D", err)
}

// TeamDestroy releases t back to the instance's team pool.
func (inst *Instance) TeamDestroy(t Team) error {
	return wrapErr("TeamDestroy", team.Destroy(inst.pool, inst.plugin, t))
}

// TeamTranslatePe maps srcPE's rank in src to its rank in dst, or -1
// if srcPE is not a member of dst.
func (inst *Instance) TeamTranslatePe(src Team, srcPE int, dst Team) int {
	return team.TranslatePe(inst.plugin, src, srcPE, dst)
}

// TeamNPEs returns t's member count.
func (inst *Instance) TeamNPEs(t Team) int { return team.NPEs(inst.plugin, t) }

// TeamMyPe returns this PE's rank within t, or -1 if it is not a
// member.
func (inst *Instance) TeamMyPe(t Team) int { return team.MyPe(inst.plugin, t) }
