package platformdesc

import (
	"fmt"

	"github.com/sockeye-project/powerseq/pkg/seqgen"
)

// Builder constructs one catalogue-class Component from its NodeSpec.
// Grounded on the per-device-class shape of original_source/
// enzian_descriptions.py (MAX15301/IR/MAX8869 regulators, CPU2/ThunderX
// consumers, FPGA, Oscillator/SI5395 clocks, Bus) — translated here into
// Go value construction instead of Python class bodies.
type Builder func(spec NodeSpec) (*seqgen.Component, error)

// Catalogue is a registry of class name -> Builder. NewCatalogue returns
// one pre-populated with the built-in classes; callers may register
// additional classes with Register before calling Load.
type Catalogue struct {
	builders map[string]Builder
}

// NewCatalogue returns a Catalogue with the built-in component classes
// registered: "regulator", "switched_regulator", "cpu", "fpga",
// "oscillator", "pll_clock", "monitor_ina226", "bus", "psu".
func NewCatalogue() *Catalogue {
	c := &Catalogue{builders: map[string]Builder{}}
	c.Register("regulator", buildRegulator)
	c.Register("switched_regulator", buildSwitchedRegulator)
	c.Register("cpu", buildCPU)
	c.Register("fpga", buildFPGA)
	c.Register("oscillator", buildOscillator)
	c.Register("pll_clock", buildPLLClock)
	c.Register("monitor_ina226", buildINA226Monitor)
	c.Register("bus", buildBus)
	c.Register("psu", buildPSU)
	return c
}

// Register adds or overrides a catalogue class.
func (c *Catalogue) Register(class string, b Builder) {
	c.builders[class] = b
}

// Build constructs the Component for one NodeSpec via its registered class.
func (c *Catalogue) Build(spec NodeSpec) (*seqgen.Component, error) {
	b, ok := c.builders[spec.Class]
	if !ok {
		return nil, fmt.Errorf("platformdesc: unknown component class %q for node %q", spec.Class, spec.Name)
	}
	return b(spec)
}

func paramInt(spec NodeSpec, key string, def int) int {
	if v, ok := spec.Params[key]; ok {
		switch x := v.(type) {
		case int:
			return x
		case float64:
			return int(x)
		}
	}
	return def
}

func paramString(spec NodeSpec, key, def string) string {
	if v, ok := spec.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// buildRegulator models a linear/switching regulator with a default-output
// mode, a bus-programmable mode, and an off mode — the MAX15301/MAX20751
// shape: V_OUT has three possibilities keyed off EN and the
// upstream supply's range, one of which (the bus-set one) carries two
// alternative dependency fragments chosen by whether the device is
// currently sitting at its default value (original_source/
// enzian_descriptions.py MAX15301.V_OUT).
func buildRegulator(spec NodeSpec) (*seqgen.Component, error) {
	defaultMv := paramInt(spec, "default_mv", 1000)
	minMv := paramInt(spec, "min_mv", 600)
	maxMv := paramInt(spec, "max_mv", 5250)
	enMin, enMax := paramInt(spec, "en_supply_min_mv", 5500), paramInt(spec, "en_supply_max_mv", 14000)
	device := paramString(spec, "device", spec.Name)

	comp := seqgen.NewComponent(spec.Name, spec.BusAddr, spec.Class)
	comp.Attrs["is_default"] = true

	defaultPoss := seqgen.Possibility{
		Kind: seqgen.KindConstantPossibility,
		State: seqgen.Single(seqgen.Range(defaultMv, defaultMv)),
		Requirements: map[string]seqgen.StateSpace{
			"EN":    seqgen.Single(seqgen.Set(1)),
			"V_PWR": seqgen.Single(seqgen.Range(enMin, enMax)),
		},
		Dependency: seqgen.EventFragment{
			Kind:          seqgen.InitiateImplicit,
			ImplicitCause: implicitCauseOf("EN", "V_PWR"),
		},
	}

	bussedPoss := seqgen.Possibility{
		Kind:  seqgen.KindStateUpdaterPossibility,
		State: seqgen.Single(seqgen.Range(minMv, maxMv)),
		Requirements: map[string]seqgen.StateSpace{
			"EN":    seqgen.Single(seqgen.Set(1)),
			"V_PWR": seqgen.Single(seqgen.Range(enMin, enMax)),
			"BUS":   seqgen.Single(seqgen.Set(1)),
		},
		DependencyUpdater: func(attrs seqgen.Attrs) (seqgen.EventFragment, error) {
			if attrs.Bool("is_default") {
				return seqgen.EventFragment{
					Kind:     seqgen.InitiateExplicit,
					AfterSet: []string{seqgen.SetEvent("EN")},
				}, nil
			}
			return seqgen.EventFragment{Kind: seqgen.InitiateExplicit}, nil
		},
	}

	offPoss := seqgen.Possibility{
		Kind:  seqgen.KindConstantPossibility,
		State: seqgen.Single(seqgen.Range(0, 0)),
		Requirements: map[string]seqgen.StateSpace{
			"EN":    seqgen.Single(seqgen.Set(0)),
			"V_PWR": seqgen.Single(seqgen.Range(0, enMax)),
		},
		Dependency: seqgen.EventFragment{
			Kind:          seqgen.InitiateImplicit,
			ImplicitCause: implicitCauseOf("EN", "V_PWR"),
		},
	}

	comp.AddOutput(&seqgen.Output{
		Name:          "V_OUT",
		WireType:      seqgen.KindPower,
		DeclaredAMR:   seqgen.Single(seqgen.Range(0, maxMv)),
		Possibilities: []seqgen.Possibility{defaultPoss, bussedPoss, offPoss},
		Set:           voltageSetRenderer(device),
	})
	comp.AddInput(&seqgen.Input{Name: "EN", DeclaredType: seqgen.KindLogical, DeclaredAMR: seqgen.Single(seqgen.Set(0, 1))})
	comp.AddInput(&seqgen.Input{Name: "V_PWR", DeclaredType: seqgen.KindPower, DeclaredAMR: seqgen.Single(seqgen.Range(0, enMax))})
	comp.AddInput(&seqgen.Input{Name: "BUS", DeclaredType: seqgen.KindBus, DeclaredAMR: seqgen.Single(seqgen.Set(0, 1))})
	return comp, nil
}

// buildSwitchedRegulator models the simpler implicit-only shape (PSU/
// Main_PSU/NCP): output state tracks a single EN input with no bus
// programmability.
func buildSwitchedRegulator(spec NodeSpec) (*seqgen.Component, error) {
	onMv := paramInt(spec, "on_mv", 12000)

	comp := seqgen.NewComponent(spec.Name, spec.BusAddr, spec.Class)
	comp.AddOutput(&seqgen.Output{
		Name:        "OUT",
		WireType:    seqgen.KindPower,
		DeclaredAMR: seqgen.Single(seqgen.Range(0, onMv)),
		Possibilities: []seqgen.Possibility{
			{
				Kind:         seqgen.KindConstantPossibility,
				State:        seqgen.Single(seqgen.Range(onMv, onMv)),
				Requirements: map[string]seqgen.StateSpace{"EN": seqgen.Single(seqgen.Set(1))},
				Dependency:   seqgen.EventFragment{Kind: seqgen.InitiateImplicit, ImplicitCause: implicitCauseOf("EN")},
			},
			{
				Kind:         seqgen.KindConstantPossibility,
				State:        seqgen.Single(seqgen.Range(0, 0)),
				Requirements: map[string]seqgen.StateSpace{"EN": seqgen.Single(seqgen.Set(0))},
				Dependency:   seqgen.EventFragment{Kind: seqgen.InitiateImplicit, ImplicitCause: implicitCauseOf("EN")},
			},
		},
	})
	comp.AddInput(&seqgen.Input{Name: "EN", DeclaredType: seqgen.KindLogical, DeclaredAMR: seqgen.Single(seqgen.Set(0, 1))})
	return comp, nil
}

func buildPSU(spec NodeSpec) (*seqgen.Component, error) {
	return buildSwitchedRegulator(spec)
}

// buildCPU models a two-power-state consumer shaped like CPU2/ThunderX:
// POWERED_DOWN (rails at zero, enables deasserted) and POWERED_ON (rails in
// their operating ranges), with an incremental enable sequence between them
// (original_source/enzian_descriptions.py CPU2.states).
func buildCPU(spec NodeSpec) (*seqgen.Component, error) {
	onMv := paramInt(spec, "vdd_on_min_mv", 2300)
	onMaxMv := paramInt(spec, "vdd_on_max_mv", 2600)

	comp := seqgen.NewComponent(spec.Name, spec.BusAddr, spec.Class)
	comp.AddInput(&seqgen.Input{Name: "VDD", DeclaredType: seqgen.KindPower, DeclaredAMR: seqgen.Single(seqgen.Range(0, onMaxMv))})
	comp.AddInput(&seqgen.Input{Name: "EN1", DeclaredType: seqgen.KindLogical, DeclaredAMR: seqgen.Single(seqgen.Set(0, 1))})
	comp.AddInput(&seqgen.Input{Name: "EN2", DeclaredType: seqgen.KindLogical, DeclaredAMR: seqgen.Single(seqgen.Set(0, 1))})

	comp.PowerStatesFactory = func(pins map[string]string) map[string]*seqgen.PowerState {
		vdd, en1, en2 := pins["VDD"], pins["EN1"], pins["EN2"]
		down := &seqgen.PowerState{
			Name: "POWERED_DOWN",
			AMR: map[string]seqgen.StateSpace{
				vdd: seqgen.Single(seqgen.Range(0, 0)),
				en1: seqgen.Single(seqgen.Set(0)),
				en2: seqgen.Single(seqgen.Set(0)),
			},
			Transitions: map[string][]seqgen.TransitionStep{
				"POWERED_ON": {{Delta: map[string]seqgen.StateSpace{en1: seqgen.Single(seqgen.Set(0))}}},
			},
		}
		on := &seqgen.PowerState{
			Name: "POWERED_ON",
			AMR: map[string]seqgen.StateSpace{
				vdd: seqgen.Single(seqgen.Range(onMv, onMaxMv)),
				en1: seqgen.Single(seqgen.Set(1)),
				en2: seqgen.Single(seqgen.Set(0)),
			},
			Transitions: map[string][]seqgen.TransitionStep{
				"POWERED_DOWN": {
					{Annotation: "wait for " + vdd + " to stabilize", Delta: map[string]seqgen.StateSpace{vdd: seqgen.Single(seqgen.Range(onMv, onMv+100))}},
					{Annotation: "", Delta: map[string]seqgen.StateSpace{en1: seqgen.Single(seqgen.Set(1))}},
					{Annotation: "", Delta: map[string]seqgen.StateSpace{en2: seqgen.Single(seqgen.Set(1)), vdd: seqgen.Single(seqgen.Range(onMv-300, onMaxMv))}},
				},
			},
		}
		return map[string]*seqgen.PowerState{"POWERED_DOWN": down, "POWERED_ON": on}
	}
	return comp, nil
}

// buildFPGA models a many-rail consumer shaped like FPGA/FPGA_EVAL3: a
// clock input with its CLK_OK flag plus seven power rails, incrementally
// sequenced on power-up one rail per step in list order, then the clock
// (original_source/enzian_descriptions.py FPGA.states).
func buildFPGA(spec NodeSpec) (*seqgen.Component, error) {
	rails := []string{"VCCINT", "VCCINT_IO", "VCCAUX", "VCCO_1V8", "VADJ_1V8", "MGTAVCC", "MGTAVTT"}

	comp := seqgen.NewComponent(spec.Name, spec.BusAddr, spec.Class)
	comp.AddInput(&seqgen.Input{Name: "CLK", DeclaredType: seqgen.KindClock, DeclaredAMR: seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(0, 50))})
	comp.AddInput(&seqgen.Input{Name: "CLK_OK", DeclaredType: seqgen.KindLogical, DeclaredAMR: seqgen.Single(seqgen.Set(0, 1))})
	for _, r := range rails {
		comp.AddInput(&seqgen.Input{Name: r, DeclaredType: seqgen.KindPower, DeclaredAMR: seqgen.Single(seqgen.Range(0, 3400))})
	}

	comp.PowerStatesFactory = func(pins map[string]string) map[string]*seqgen.PowerState {
		clk, ok := pins["CLK"], pins["CLK_OK"]
		downAMR := map[string]seqgen.StateSpace{
			clk: seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(0, 0)),
			ok:  seqgen.Single(seqgen.Set(0)),
		}
		onAMR := map[string]seqgen.StateSpace{
			clk: seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(50, 50)),
			ok:  seqgen.Single(seqgen.Set(1)),
		}
		var upSteps []seqgen.TransitionStep
		for _, r := range rails {
			cond := pins[r]
			downAMR[cond] = seqgen.Single(seqgen.Range(0, 0))
			onAMR[cond] = seqgen.Single(seqgen.Range(800, 2000))
			upSteps = append(upSteps, seqgen.TransitionStep{Delta: map[string]seqgen.StateSpace{cond: seqgen.Single(seqgen.Range(800, 2000))}})
		}
		upSteps = append(upSteps, seqgen.TransitionStep{Delta: map[string]seqgen.StateSpace{clk: onAMR[clk], ok: onAMR[ok]}})

		down := &seqgen.PowerState{Name: "POWERED_DOWN", AMR: downAMR, Transitions: map[string][]seqgen.TransitionStep{
			"POWERED_ON": {{Delta: map[string]seqgen.StateSpace{ok: seqgen.Single(seqgen.Set(0))}}},
		}}
		on := &seqgen.PowerState{Name: "POWERED_ON", AMR: onAMR, Transitions: map[string][]seqgen.TransitionStep{
			"POWERED_DOWN": upSteps,
		}}
		return map[string]*seqgen.PowerState{"POWERED_DOWN": down, "POWERED_ON": on}
	}
	return comp, nil
}

// buildOscillator models a fixed clock source whose CLK output depends on
// its own supply rail (original_source/enzian_descriptions.py Oscillator).
func buildOscillator(spec NodeSpec) (*seqgen.Component, error) {
	comp := seqgen.NewComponent(spec.Name, spec.BusAddr, spec.Class)
	comp.AddInput(&seqgen.Input{Name: "VDD", DeclaredType: seqgen.KindPower, DeclaredAMR: seqgen.Single(seqgen.Range(0, 3600))})
	comp.AddOutput(&seqgen.Output{
		Name:        "CLK",
		WireType:    seqgen.KindClock,
		DeclaredAMR: seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(0, 50)),
		Possibilities: []seqgen.Possibility{
			{
				Kind:         seqgen.KindConstantPossibility,
				State:        seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(50, 50)),
				Requirements: map[string]seqgen.StateSpace{"VDD": seqgen.Single(seqgen.Range(2600, 3600))},
				Dependency:   seqgen.EventFragment{Kind: seqgen.InitiateImplicit, ImplicitCause: implicitCauseOf("VDD")},
			},
			{
				Kind:         seqgen.KindConstantPossibility,
				State:        seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(0, 0)),
				Requirements: map[string]seqgen.StateSpace{"VDD": seqgen.Single(seqgen.Range(0, 2599))},
				Dependency:   seqgen.EventFragment{Kind: seqgen.InitiateImplicit, ImplicitCause: implicitCauseOf("VDD")},
			},
		},
		Set: clockSetRenderer(),
	})
	return comp, nil
}

// buildPLLClock models a programmable PLL clock source (SI5395): an
// explicit configuration write gates whether CLK_IN is passed through or
// suppressed, plus an implicit off state (original_source/
// enzian_descriptions.py SI5395).
func buildPLLClock(spec NodeSpec) (*seqgen.Component, error) {
	device := paramString(spec, "device", spec.Name)

	comp := seqgen.NewComponent(spec.Name, spec.BusAddr, spec.Class)
	comp.Attrs["configured"] = false
	comp.AddInput(&seqgen.Input{Name: "VDD", DeclaredType: seqgen.KindPower, DeclaredAMR: seqgen.Single(seqgen.Range(0, 3600))})
	comp.AddInput(&seqgen.Input{Name: "CLK_IN", DeclaredType: seqgen.KindClock, DeclaredAMR: seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(0, 50))})
	comp.AddOutput(&seqgen.Output{
		Name:        "CLK",
		WireType:    seqgen.KindClock,
		DeclaredAMR: seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(0, 50)),
		Possibilities: []seqgen.Possibility{
			{
				Kind:  seqgen.KindStateUpdaterPossibility,
				State: seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(50, 50)),
				Requirements: map[string]seqgen.StateSpace{
					"VDD":    seqgen.Single(seqgen.Range(2600, 3600)),
					"CLK_IN": seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(50, 50)),
				},
				DependencyUpdater: func(attrs seqgen.Attrs) (seqgen.EventFragment, error) {
					if attrs.Bool("configured") {
						return seqgen.EventFragment{Kind: seqgen.InitiateImplicit, ImplicitCause: implicitCauseOf("VDD", "CLK_IN")}, nil
					}
					return seqgen.EventFragment{Kind: seqgen.InitiateExplicit}, nil
				},
			},
			{
				Kind:         seqgen.KindConstantPossibility,
				State:        seqgen.Single(seqgen.Range(0, 0), seqgen.Range(3300, 3300), seqgen.Range(0, 0)),
				Requirements: map[string]seqgen.StateSpace{"VDD": seqgen.Single(seqgen.Range(0, 2599))},
				Dependency:   seqgen.EventFragment{Kind: seqgen.InitiateImplicit, ImplicitCause: implicitCauseOf("VDD")},
			},
		},
		Set: clockConfigRenderer(device),
	})
	return comp, nil
}

// buildINA226Monitor models an I2C power monitor whose monitor callback
// renders a wait_for_voltage command once its supply has settled
// (original_source/enzian_descriptions.py INA226.ina_monitor). It is
// consumer-only: it attaches a monitor Input to VS, it produces no Output.
func buildINA226Monitor(spec NodeSpec) (*seqgen.Component, error) {
	device := paramString(spec, "device", spec.Name)
	comp := seqgen.NewComponent(spec.Name, spec.BusAddr, spec.Class)
	comp.Attrs["configured"] = false
	comp.AddInput(&seqgen.Input{
		Name:         "VS",
		DeclaredType: seqgen.KindMonitor,
		Monitor: func(owner *seqgen.Component, conductor string) seqgen.MonitorFunc {
			return func(value seqgen.Option, full map[string]seqgen.Option) (bool, string) {
				usable := len(value) > 0 && value[0].Kind == seqgen.DimRange && value[0].Lo > 2700 && value[0].Hi < 5500
				cmd := fmt.Sprintf("wait_for_voltage(%q, v_min=%.3f, v_max=%.3f, device=%q)",
					conductor, 0.00095*float64(valueMidpoint(value)), 0.00105*float64(valueMidpoint(value)), device)
				if usable && !owner.Attrs.Bool("configured") {
					owner.Attrs["configured"] = true
					cmd = fmt.Sprintf("init_device(%q, false)\n%s", device, cmd)
				}
				return usable, cmd
			}
		},
	})
	return comp, nil
}

func valueMidpoint(o seqgen.Option) int {
	if len(o) == 0 {
		return 0
	}
	d := o[0]
	if d.Kind == seqgen.DimRange {
		return d.Lo + (d.Hi-d.Lo)/2
	}
	if len(d.Set) > 0 {
		return d.Set[0]
	}
	return 0
}

// buildBus models the shared programming bus (original_source/
// enzian_descriptions.py Bus) as two unconditional possibilities, on {1} and
// off {0}, neither with Requirements; what the bus must carry is expressed
// by each regulator's own possibility requirements instead.
func buildBus(spec NodeSpec) (*seqgen.Component, error) {
	comp := seqgen.NewComponent(spec.Name, spec.BusAddr, spec.Class)
	comp.AddOutput(&seqgen.Output{
		Name:        "BUS",
		WireType:    seqgen.KindBus,
		DeclaredAMR: seqgen.Single(seqgen.Set(0, 1)),
		Possibilities: []seqgen.Possibility{
			{
				Kind:       seqgen.KindConstantPossibility,
				State:      seqgen.Single(seqgen.Set(1)),
				Dependency: seqgen.EventFragment{Kind: seqgen.InitiateExplicit},
			},
			{
				Kind:       seqgen.KindConstantPossibility,
				State:      seqgen.Single(seqgen.Set(0)),
				Dependency: seqgen.EventFragment{Kind: seqgen.InitiateExplicit},
			},
		},
		Set: func(value seqgen.Option) string {
			return fmt.Sprintf("bus_set(%v)", value)
		},
	})
	return comp, nil
}

func implicitCauseOf(names ...string) func(map[string]seqgen.Option) []string {
	return func(target map[string]seqgen.Option) []string {
		return names
	}
}

func voltageSetRenderer(device string) seqgen.SetRenderer {
	return func(value seqgen.Option) string {
		return fmt.Sprintf("voltage_set(%q, %v)", device, value)
	}
}

func clockSetRenderer() seqgen.SetRenderer {
	return func(value seqgen.Option) string {
		return fmt.Sprintf("clock_config(%v)", value)
	}
}

func clockConfigRenderer(device string) seqgen.SetRenderer {
	return func(value seqgen.Option) string {
		return fmt.Sprintf("clock_config(%q, %v)", device, value)
	}
}
