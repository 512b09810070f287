package pipeline

import (
	"context"
	"errors"
	"fmt"
)

const (
	TextWelcome         = "👋 Send me a YouTube link and I'll cut it into Shorts!"
	TextHelp            = "Send a YouTube link (youtube.com/watch, youtu.be, /shorts). I download it, cut it into %ds vertical shorts with the channel watermark and send them back one by one.\n/cancel stops the current job."
	TextInvalidLink     = "❌ Invalid link. Send a YouTube video URL."
	TextBusy            = "⏳ Still working on your previous link. Wait for it to finish or /cancel it."
	TextCancelled       = "🛑 Cancelled."
	TextNothingToCancel = "Nothing to cancel."

	textStarting     = "⬇️ Starting download…"
	textDownloading  = "⬇️ Downloading… %d%%"
	textDownloaded   = "✅ Download complete, preparing shorts…"
	textCutting      = "✂️ Short %d / %d…"
	textDone         = "✅ Done: %d short(s) sent."
	textAcquireFail  = "❌ Download failed. The video may be private, age-restricted or unavailable."
	textInspectFail  = "❌ Could not read the downloaded video."
	textSegmentFail  = "❌ Stopped at short %d of %d: something went wrong. The shorts already sent are complete."
	textInternalFail = "❌ Something went wrong on our side. Try again later."
	textTimedOut     = "⌛ Timed out while processing. Try a shorter video."
)

// userMessage maps a failure to the one line shown to the user.
func userMessage(f *Failure, planned int) string {
	switch {
	case errors.Is(f, context.Canceled):
		return TextCancelled
	case errors.Is(f, context.DeadlineExceeded):
		return textTimedOut
	}
	switch f.Kind {
	case KindInvalidInput:
		return TextInvalidLink
	case KindAcquisition:
		return textAcquireFail
	case KindInspection:
		return textInspectFail
	case KindSegment:
		return fmt.Sprintf(textSegmentFail, f.Index+1, planned)
	default:
		return textInternalFail
	}
}
