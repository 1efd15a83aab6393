package motion

// Texts sent to chat users. They are part of the user contract.
const (
	MessageSettingUp = "Do not move, setting up the PIR sensor..."

	MessageArmed = "ALARMS ACTIVATED. The bot will spam you with messages " +
		"every time it sees movements around. Alerts keep coming until the bot is restarted."

	MessageMotionDetected = "MOTION DETECTED"

	MessageAlreadySubscribed = "You've already subscribed for notifications"

	MessageAccessDenied = "🚫 *ACCESS DENIED*\n" +
		"Sorry, you are *not authorized* to use this command"

	MessageHelp = "Use this bot via the /start command. " +
		"Once activated, it sends an alert on every movement the sensor sees."

	MessageStartFailed = "Could not activate alarms, please try /start again later."
)
