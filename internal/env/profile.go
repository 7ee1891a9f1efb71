package env

// Interaction is the engine's interaction-option bag.
type Interaction struct {
	DragRotate          bool    `json:"dragRotate"`
	TouchZoomRotate     bool    `json:"touchZoomRotate"`
	TouchPitch          bool    `json:"touchPitch"`
	PitchWithRotate     bool    `json:"pitchWithRotate"`
	ScrollZoom          bool    `json:"scrollZoom"`
	BoxZoom             bool    `json:"boxZoom"`
	Keyboard            bool    `json:"keyboard"`
	CooperativeGestures bool    `json:"cooperativeGestures"`
	MaxPitch            float64 `json:"maxPitch"`
	FadeDuration        int     `json:"fadeDuration" doc:"Label fade duration in ms"`
	CompactAttribution  bool    `json:"compactAttribution"`
}

// Profile is a device capability class.
type Profile interface {
	Name() string
	Interaction() Interaction
}

// TouchProfile is the preset for touch and mobile devices.
type TouchProfile struct{}

// PointerProfile is the preset for mouse and trackpad devices.
type PointerProfile struct{}

func (TouchProfile) Name() string { return "touch" }

// Interaction disables rotation and pitch gestures that fight with pinch
// zoom, and shortens label fades for slower GPUs.
func (TouchProfile) Interaction() Interaction {
	return Interaction{
		DragRotate:          false,
		TouchZoomRotate:     true,
		TouchPitch:          false,
		PitchWithRotate:     false,
		ScrollZoom:          true,
		BoxZoom:             false,
		Keyboard:            false,
		CooperativeGestures: false,
		MaxPitch:            0,
		FadeDuration:        100,
		CompactAttribution:  true,
	}
}

func (PointerProfile) Name() string { return "pointer" }

func (PointerProfile) Interaction() Interaction {
	return Interaction{
		DragRotate:          true,
		TouchZoomRotate:     true,
		TouchPitch:          true,
		PitchWithRotate:     true,
		ScrollZoom:          true,
		BoxZoom:             true,
		Keyboard:            true,
		CooperativeGestures: false,
		MaxPitch:            60,
		FadeDuration:        300,
		CompactAttribution:  false,
	}
}

// ProfileFor selects the capability profile of a classification.
func ProfileFor(c Classification) Profile {
	if c.Mobile {
		return TouchProfile{}
	}
	return PointerProfile{}
}
