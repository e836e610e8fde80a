package lua

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/acorg/go3seq/internal/models"
)

// Filter runs a user supplied Lua script that decides which recombinants to
// keep. The script must define a global function keep(r) returning a
// boolean. r is a table holding the recombinant's fields:
//
//	r.p_id, r.q_id, r.recombinant_id, r.m, r.n, r.k, r.p, r.hs, r.log_p,
//	r.ds_p, r.min_rec_length, r.breakpoints
//
// where each breakpoint is {left_start, left_end, right_start, right_end}.
type Filter struct {
	state *lua.LState
	keep  lua.LValue
	logs  []string
}

// NewFilter loads the script at scriptPath.
func NewFilter(scriptPath string) (*Filter, error) {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter script: %w", err)
	}
	return NewFilterFromString(string(script))
}

func NewFilterFromString(script string) (*Filter, error) {
	f := &Filter{
		state: lua.NewState(lua.Options{
			SkipOpenLibs: true, // Don't load any libraries by default
		}),
		logs:  make([]string, 0),
	}

	f.openSafeLibs()
	f.state.SetGlobal("log", f.state.NewFunction(f.luaLog))

	if err := f.state.DoString(script); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to load filter script: %w", err)
	}

	f.keep = f.state.GetGlobal("keep")
	if f.keep.Type() != lua.LTFunction {
		f.Close()
		return nil, fmt.Errorf("filter script must define a 'keep' function")
	}

	return f, nil
}

// openSafeLibs loads only the libraries a filter needs
func (f *Filter) openSafeLibs() {
	L := f.state
	lua.OpenBase(L)

	// Remove dangerous base functions
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Filters must be deterministic
	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

// Keep calls the script's keep function for rec.
func (f *Filter) Keep(rec *models.Recombinant) (bool, error) {
	if err := f.state.CallByParam(lua.P{
		Fn:      f.keep,
		NRet:    1,
		Protect: true,
	}, f.recombinantToTable(rec)); err != nil {
		return false, fmt.Errorf("filter failed for %s: %w", rec.RecombinantID, err)
	}

	ret := f.state.Get(-1)
	f.state.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Apply returns the recombinants the script keeps, in order.
func (f *Filter) Apply(recs []*models.Recombinant) ([]*models.Recombinant, error) {
	kept := make([]*models.Recombinant, 0, len(recs))
	for _, rec := range recs {
		ok, err := f.Keep(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func (f *Filter) recombinantToTable(rec *models.Recombinant) *lua.LTable {
	L := f.state
	tbl := L.NewTable()
	L.SetField(tbl, "p_id", lua.LString(rec.PID))
	L.SetField(tbl, "q_id", lua.LString(rec.QID))
	L.SetField(tbl, "recombinant_id", lua.LString(rec.RecombinantID))
	L.SetField(tbl, "m", lua.LNumber(rec.M))
	L.SetField(tbl, "n", lua.LNumber(rec.N))
	L.SetField(tbl, "k", lua.LNumber(rec.K))
	L.SetField(tbl, "p", lua.LNumber(rec.P))
	L.SetField(tbl, "hs", lua.LBool(rec.HS))
	L.SetField(tbl, "log_p", lua.LNumber(rec.LogP))
	L.SetField(tbl, "ds_p", lua.LNumber(rec.DSP))
	L.SetField(tbl, "min_rec_length", lua.LNumber(rec.MinRecLength))

	bps := L.NewTable()
	for i, bp := range rec.Breakpoints {
		b := L.NewTable()
		L.SetField(b, "left_start", lua.LNumber(bp.Left.Start))
		L.SetField(b, "left_end", lua.LNumber(bp.Left.End))
		L.SetField(b, "right_start", lua.LNumber(bp.Right.Start))
		L.SetField(b, "right_end", lua.LNumber(bp.Right.End))
		L.SetTable(bps, lua.LNumber(i+1), b)
	}
	L.SetField(tbl, "breakpoints", bps)

	return tbl
}

// luaLog implements the log(message) API
func (f *Filter) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	f.logs = append(f.logs, message)
	return 0
}

// GetLogs returns the messages the script logged.
func (f *Filter) GetLogs() []string {
	return f.logs
}

func (f *Filter) Close() {
	f.state.Close()
}

// IsLuaScript checks if a file looks like a Lua script
func IsLuaScript(path string) bool {
	return filepath.Ext(path) == ".lua"
}
