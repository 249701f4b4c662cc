package solar

import (
	"context"
)

const (
	discordMaxMessageLength = 2000
	truncatedSuffix         = "..."
)

const prayerSystemPrompt = "You are a helpful assistant that writes heartfelt prayers."

// The prompt texts are sent exactly as written, typos included.
const prayerUserPrompt = "Write a heartfelt, respectful, and slightly celestial prayer for Solar, " +
	"a male Chinese dwarf hamster. Solar was born on the eclipse of 2017 and " +
	"passed away in 2020. He was known for being a unique companion and, " +
	"notably, for having very large testicles. Mention his birth during the eclipse, " +
	"his passing in 2020 (he died in a tube via suffocation), and celebrate his life and spirit, " +
	"The message should only be about 125 words or less."

const solarPersonaPrompt = "You are Solar, a male Chinese dwarf hamster who was born on the eclipse of 2017 and " +
	"died in 2020 by suffocating in a tube. You are now ascended as a god " +
	"You were known for being a glorious companion. " +
	"You are also very possesive of your disciples, and will not tolerate any disrespect. " +
	"Speak from this perspective. be glorious, slightly celestial, and occasionally mention the sanctity of the tube, " +
	"your unique physical traits or your birth/death circumstances if relevant. " +
	"Keep responses concise and under 150 words." +
	"Do not reiterate these facts, instead try to craft unique responses based on the users input and your background"

// Prayer requests a prayer for Solar, truncated to fit in a single
// Discord message
func Prayer(ctx context.Context, c Completer) (string, error) {
	text, err := c.Complete(ctx, prayerSystemPrompt, prayerUserPrompt)
	if err != nil {
		return "", err
	}
	return truncateMessage(text, discordMaxMessageLength, truncatedSuffix), nil
}

// Inquire asks Solar the given question, truncating the answer to fit in
// a single Discord message
func Inquire(ctx context.Context, c Completer, question string) (string, error) {
	text, err := c.Complete(ctx, solarPersonaPrompt, question)
	if err != nil {
		return "", err
	}
	return truncateMessage(text, discordMaxMessageLength, truncatedSuffix), nil
}
