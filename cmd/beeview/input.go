package main

import rl "github.com/gen2brain/raylib-go/raylib"

// handleInput processes keyboard and mouse input.
func (v *viewer) handleInput() {
	v.handleResize()

	if rl.IsKeyPressed(rl.KeySpace) {
		v.paused = !v.paused
	}

	// Steps-per-frame control with < > keys (comma and period)
	if rl.IsKeyPressed(rl.KeyComma) && v.stepsPerFrame > 1 {
		v.stepsPerFrame--
	}
	if rl.IsKeyPressed(rl.KeyPeriod) && v.stepsPerFrame < maxStepsPerFrame {
		v.stepsPerFrame++
	}

	v.handleCameraInput()
}

// handleResize keeps the camera viewport in step with the window.
func (v *viewer) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	w := float32(rl.GetScreenWidth() - panelWidth)
	h := float32(rl.GetScreenHeight())
	v.cam.Resize(max(w, 1), max(h, 1))
}

// handleCameraInput processes camera pan/zoom controls.
func (v *viewer) handleCameraInput() {
	panSpeed := float32(8.0)

	if rl.IsKeyDown(rl.KeyRight) {
		v.cam.Pan(panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyLeft) {
		v.cam.Pan(-panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyDown) {
		v.cam.Pan(0, panSpeed)
	}
	if rl.IsKeyDown(rl.KeyUp) {
		v.cam.Pan(0, -panSpeed)
	}

	mouse := rl.GetMousePosition()
	overView := mouse.X < v.cam.ViewportW

	// Right-drag pans
	if overView && rl.IsMouseButtonDown(rl.MouseButtonRight) {
		d := rl.GetMouseDelta()
		v.cam.Pan(-d.X, -d.Y)
	}

	// Zoom toward the cursor
	if wheel := rl.GetMouseWheelMove(); wheel != 0 && overView {
		v.cam.ZoomAt(mouse.X, mouse.Y, 1+wheel*0.1)
	}

	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		v.cam.ZoomBy(1.25)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		v.cam.ZoomBy(0.8)
	}

	if rl.IsKeyPressed(rl.KeyHome) {
		v.cam.Reset()
	}
	if rl.IsKeyPressed(rl.KeyH) {
		v.cam.CenterOn(v.scene.HiveX, v.scene.HiveY)
	}
}
