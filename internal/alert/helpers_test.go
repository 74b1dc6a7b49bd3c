package alert

import "github.com/abelbrown/iasi/internal/signal"

func signalsAll(v float64) map[signal.Channel]signal.Signal {
	out := make(map[signal.Channel]signal.Signal, signal.NumChannels)
	for _, c := range signal.Channels {
		out[c] = signal.Signal{Channel: c, Normalized: v}
	}
	return out
}
