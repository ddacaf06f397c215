package assistant

import (
	"regexp"
	"strings"
)

// SourceCanned tags replies served by the built-in shortcut; they are never
// persisted and never billed against the model.
const SourceCanned = "canned"

var (
	greetingRe = regexp.MustCompile(`^(hi|hello|hey|good morning|good afternoon|good evening)$`)
	goodbyeRe  = regexp.MustCompile(`^(bye|goodbye|thanks|thank you)$`)
)

// BuiltinReply intercepts common product questions before the model is
// called. It returns ("", false) for anything that should go through the
// full pipeline. Matching is intentionally shallow substring work; this is
// a cost-saving shortcut, not intent classification.
func BuiltinReply(query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case greetingRe.MatchString(q):
		return "Hello! I'm your AquaMind AI assistant. I can help you with water management, tank monitoring, and system insights. What would you like to know?", true
	case strings.Contains(q, "what is aquamind") || strings.Contains(q, "what does aquamind do"):
		return "AquaMind is a smart water management system that provides real-time tank monitoring, AI-powered insights, and predictive analytics. It helps reduce water waste by up to 30% and prevents costly emergencies through intelligent alerts.", true
	case strings.Contains(q, "how does it work") || strings.Contains(q, "how it works"):
		return "AquaMind works by connecting to your water tanks through IoT sensors, monitoring levels in real-time, analyzing usage patterns, and providing intelligent recommendations. The system sends alerts for low levels, predicts maintenance needs, and helps optimize water consumption.", true
	case strings.Contains(q, "features") || strings.Contains(q, "what can you do"):
		return "Key AquaMind features include:\n• Real-time tank monitoring\n• Smart alerts and notifications\n• AI-powered usage optimization\n• Predictive maintenance insights\n• Historical data analysis\n• Mobile-responsive dashboard\n• Cost savings tracking", true
	case strings.Contains(q, "benefits") || strings.Contains(q, "why use"):
		return "AquaMind benefits:\n• Reduce water waste by 30%\n• Prevent costly overflow incidents\n• Lower operational costs\n• Ensure regulatory compliance\n• Optimize maintenance schedules\n• Real-time monitoring from anywhere\n• Improve sustainability metrics", true
	case strings.Contains(q, "price") || strings.Contains(q, "cost") || strings.Contains(q, "pricing"):
		return "AquaMind offers flexible pricing:\n• Basic Plan: $29/month (up to 5 tanks)\n• Professional: $99/month (up to 25 tanks, AI insights)\n• Enterprise: $299/month (unlimited tanks, custom integrations)\n\nAll plans include real-time monitoring, alerts, and mobile access.", true
	case strings.Contains(q, "how to") && strings.Contains(q, "install"):
		return "AquaMind installation is simple:\n1. Connect IoT sensors to your tanks\n2. Configure sensor settings in dashboard\n3. Set alert thresholds\n4. Start monitoring!\n\nOur team provides full setup support and training.", true
	case goodbyeRe.MatchString(q):
		return "You're welcome! Feel free to ask me anything about AquaMind or water management anytime. Have a great day! 💧", true
	}
	return "", false
}
