// Package io_control writes robot I/O through dedicated input recipes,
// orthogonal to the control script: digital outputs, tool outputs, the
// speed slider, and analog outputs. Every write is mask-plus-value so
// untouched outputs are preserved, and no handshake is involved; the
// controller applies the write on its next tick.
package io_control

import (
	"fmt"
	"math"
	"sync"

	"urdriver/rtde"
	"urdriver/shared"
)

// IO_COMMAND_REGISTER is the input int register reserved for this facade,
// deliberately outside both command-channel windows (0..7 and 24..31) so
// the two interfaces can run together.
const IO_COMMAND_REGISTER = 20

const (
	STANDARD_DIGITAL_OUTPUTS = 8
	TOOL_DIGITAL_OUTPUTS     = 2
	STANDARD_ANALOG_OUTPUTS  = 2
)

// Analog output domains for standard_analog_output_type.
const (
	ANALOG_CURRENT = 0
	ANALOG_VOLTAGE = 1
)

// Client issues I/O writes over an RTDE session. Each output class has its
// own input recipe; the field sets are disjoint from the command channel's
// register window.
type Client struct {
	sess *rtde.Session

	digitalRecipe  uint8
	toolRecipe     uint8
	speedRecipe    uint8
	analogRecipe   uint8
	registerRecipe uint8
	declared       bool

	mu sync.Mutex
}

func NewClient(sess *rtde.Session) *Client {
	return &Client{sess: sess}
}

// DeclareRecipes sets up the facade's input recipes. Must run before the
// session starts streaming.
func (c *Client) DeclareRecipes() error {
	var err error
	if c.digitalRecipe, err = c.sess.SendInputSetup([]string{
		"standard_digital_output_mask", "standard_digital_output",
	}); err != nil {
		return fmt.Errorf("digital recipe: %w", err)
	}
	if c.toolRecipe, err = c.sess.SendInputSetup([]string{
		"tool_digital_output_mask", "tool_digital_output",
	}); err != nil {
		return fmt.Errorf("tool recipe: %w", err)
	}
	if c.speedRecipe, err = c.sess.SendInputSetup([]string{
		"speed_slider_mask", "speed_slider_fraction",
	}); err != nil {
		return fmt.Errorf("speed slider recipe: %w", err)
	}
	if c.analogRecipe, err = c.sess.SendInputSetup([]string{
		"standard_analog_output_mask", "standard_analog_output_type",
		"standard_analog_output_0", "standard_analog_output_1",
	}); err != nil {
		return fmt.Errorf("analog recipe: %w", err)
	}
	if c.registerRecipe, err = c.sess.SendInputSetup([]string{
		rtde.InputIntRegister(IO_COMMAND_REGISTER),
	}); err != nil {
		return fmt.Errorf("register recipe: %w", err)
	}
	c.declared = true
	return nil
}

func (c *Client) send(recipeID uint8, values map[string]interface{}) error {
	if !c.declared {
		return fmt.Errorf("%w: I/O recipes not declared", shared.ErrSetupRejected)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Send(recipeID, values)
}

// SetStandardDigitalOut drives one standard digital output. Output id maps
// to mask bit 1<<id; other outputs keep their levels.
func (c *Client) SetStandardDigitalOut(id int, level bool) error {
	if id < 0 || id >= STANDARD_DIGITAL_OUTPUTS {
		return fmt.Errorf("%w: standard digital output %d", shared.ErrOutOfRange, id)
	}
	mask := uint8(1) << uint(id)
	value := uint8(0)
	if level {
		value = mask
	}
	return c.send(c.digitalRecipe, map[string]interface{}{
		"standard_digital_output_mask": mask,
		"standard_digital_output":      value,
	})
}

// SetToolDigitalOut drives one tool digital output (0 or 1).
func (c *Client) SetToolDigitalOut(id int, level bool) error {
	if id < 0 || id >= TOOL_DIGITAL_OUTPUTS {
		return fmt.Errorf("%w: tool digital output %d", shared.ErrOutOfRange, id)
	}
	mask := uint8(1) << uint(id)
	value := uint8(0)
	if level {
		value = mask
	}
	return c.send(c.toolRecipe, map[string]interface{}{
		"tool_digital_output_mask": mask,
		"tool_digital_output":      value,
	})
}

// SetSpeedSlider overrides the speed slider to a fraction of programmed
// speed, 0..1.
func (c *Client) SetSpeedSlider(fraction float64) error {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return fmt.Errorf("%w: speed slider fraction %v", shared.ErrOutOfRange, fraction)
	}
	return c.send(c.speedRecipe, map[string]interface{}{
		"speed_slider_mask":     uint32(1),
		"speed_slider_fraction": fraction,
	})
}

// SetAnalogOutputVoltage drives a standard analog output in the voltage
// domain, as a 0..1 ratio of the output range.
func (c *Client) SetAnalogOutputVoltage(id int, ratio float64) error {
	return c.setAnalogOutput(id, ratio, ANALOG_VOLTAGE)
}

// SetAnalogOutputCurrent drives a standard analog output in the current
// domain, as a 0..1 ratio of the output range.
func (c *Client) SetAnalogOutputCurrent(id int, ratio float64) error {
	return c.setAnalogOutput(id, ratio, ANALOG_CURRENT)
}

func (c *Client) setAnalogOutput(id int, ratio float64, domain int) error {
	if id < 0 || id >= STANDARD_ANALOG_OUTPUTS {
		return fmt.Errorf("%w: standard analog output %d", shared.ErrOutOfRange, id)
	}
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return fmt.Errorf("%w: analog output ratio %v", shared.ErrOutOfRange, ratio)
	}
	mask := uint8(1) << uint(id)
	typeMask := uint8(0)
	if domain == ANALOG_VOLTAGE {
		typeMask = mask
	}
	values := map[string]interface{}{
		"standard_analog_output_mask": mask,
		"standard_analog_output_type": typeMask,
	}
	if id == 0 {
		values["standard_analog_output_0"] = ratio
	} else {
		values["standard_analog_output_1"] = ratio
	}
	return c.send(c.analogRecipe, values)
}

// SetInputIntRegister writes the facade's reserved scratch register. Only
// IO_COMMAND_REGISTER is writable here; the command-channel windows are
// off limits.
func (c *Client) SetInputIntRegister(id int, value int32) error {
	if id != IO_COMMAND_REGISTER {
		return fmt.Errorf("%w: input int register %d reserved for other interfaces", shared.ErrOutOfRange, id)
	}
	return c.send(c.registerRecipe, map[string]interface{}{
		rtde.InputIntRegister(id): value,
	})
}
