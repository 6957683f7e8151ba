package app

// User-facing replies. All of them are sent privately to the invoking member.
const (
	MsgDirectMessage  = "You can't use this in DMs! How did we even get here..."
	MsgNotFound       = "Couldn't find your student account. Make sure you're using the right email!"
	MsgNotRegistered  = "Unfortunately, you don't seem to be registered for the event."
	MsgConflictFormat = "Looks like you've already verified with a different Discord account (%s)!"
	MsgWelcomeFormat  = "Welcome to the server, %s! Your student ID is %s."
	MsgFailure        = "Oops! Something went wrong."
)
