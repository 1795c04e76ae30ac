package main

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
	gui "github.com/gen2brain/raylib-go/raygui"

	"github.com/pthm-cable/hive/components"
)

const maxStepsPerFrame = 20

var (
	background = rl.Color{R: 24, G: 28, B: 22, A: 255}
	panelColor = rl.Color{R: 40, G: 40, B: 44, A: 255}
)

// draw renders the world view and the control panel.
func (v *viewer) draw() {
	rl.BeginDrawing()
	rl.ClearBackground(background)

	v.drawWorld()
	v.drawPanel()

	rl.EndDrawing()
}

func (v *viewer) drawWorld() {
	cam := v.cam
	rl.BeginScissorMode(0, 0, int32(cam.ViewportW), int32(cam.ViewportH))
	defer rl.EndScissorMode()

	// World border
	x0, y0 := cam.WorldToScreen(0, 0)
	x1, y1 := cam.WorldToScreen(float32(v.worldSize), float32(v.worldSize))
	rl.DrawRectangleLinesEx(rl.Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, 1, rl.DarkGray)

	// Flowers scale with zoom, bees stay a fixed pixel size
	flowerR := max(2*cam.Zoom, 1.5)
	for _, f := range v.scene.Flowers {
		if !cam.IsVisible(f.X, f.Y, 2) {
			continue
		}
		sx, sy := cam.WorldToScreen(f.X, f.Y)
		rl.DrawCircleV(rl.Vector2{X: sx, Y: sy}, flowerR, lerpColor(rl.Maroon, rl.Pink, f.Fill))
	}

	hx, hy := cam.WorldToScreen(v.scene.HiveX, v.scene.HiveY)
	rl.DrawCircleLinesV(rl.Vector2{X: hx, Y: hy}, max(v.scene.HiveRadius*cam.Zoom, 3), rl.Yellow)

	for _, b := range v.scene.Bees {
		if !cam.IsVisible(b.X, b.Y, 1) {
			continue
		}
		sx, sy := cam.WorldToScreen(b.X, b.Y)
		rl.DrawRectangleV(rl.Vector2{X: sx - 1, Y: sy - 1}, rl.Vector2{X: 2, Y: 2}, stateColor(b.State))
	}
}

func (v *viewer) drawPanel() {
	px := int32(v.cam.ViewportW)
	h := int32(rl.GetScreenHeight())
	rl.DrawRectangle(px, 0, panelWidth, h, panelColor)

	x := float32(px + 12)
	y := float32(12)
	line := func(text string, size int32, c rl.Color) {
		rl.DrawText(text, int32(x), int32(y), size, c)
		y += float32(size) + 6
	}

	line(v.title(), 14, rl.White)
	line(fmt.Sprintf("Step: %d", v.scene.Timestep), 16, rl.LightGray)
	line(fmt.Sprintf("Nectar: %.2f", v.scene.TotalNectar), 16, rl.LightGray)
	y += 6

	for s := range components.NumStates {
		state := components.BeeState(s)
		rl.DrawRectangle(int32(x), int32(y)+3, 10, 10, stateColor(state))
		rl.DrawText(fmt.Sprintf("%-9s %d", state, v.scene.Counts[s]), int32(x)+16, int32(y), 14, rl.LightGray)
		y += 20
	}
	y += 10

	if v.sim == nil {
		line("Snapshot view", 14, rl.Gray)
	} else {
		line(fmt.Sprintf("Energy mean %.1f (p10 %.1f)", v.last.EnergyMean, v.last.EnergyP10), 14, rl.LightGray)
		line(fmt.Sprintf("Depleted flowers: %d", v.last.DepletedFlowers), 14, rl.LightGray)
		y += 6

		line("Steps per frame", 14, rl.Gray)
		spf := gui.SliderBar(
			rl.Rectangle{X: x, Y: y, Width: panelWidth - 70, Height: 20},
			"", fmt.Sprintf("%d", v.stepsPerFrame),
			float32(v.stepsPerFrame), 1, maxStepsPerFrame,
		)
		v.stepsPerFrame = int(spf + 0.5)
		y += 32

		if gui.Button(rl.Rectangle{X: x, Y: y, Width: 110, Height: 28}, toggleText(v.paused, "Resume", "Pause")) {
			v.paused = !v.paused
		}
		y += 40

		perf := v.sim.Perf().Stats()
		line(fmt.Sprintf("Tick: %.0f us (%.0f/s)", float64(perf.AvgTickDuration.Microseconds()), perf.TicksPerSecond), 14, rl.LightGray)
	}
	line(fmt.Sprintf("FPS: %d", rl.GetFPS()), 14, rl.LightGray)

	rl.DrawText("Space pause  ,/. speed  wheel zoom", px+12, h-44, 12, rl.Gray)
	rl.DrawText("arrows/right-drag pan  H hive  Home reset", px+12, h-26, 12, rl.Gray)
}

func lerpColor(a, b rl.Color, t float32) rl.Color {
	mix := func(x, y uint8) uint8 { return uint8(float32(x) + (float32(y)-float32(x))*t) }
	return rl.Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

func toggleText(on bool, onText, offText string) string {
	if on {
		return onText
	}
	return offText
}
