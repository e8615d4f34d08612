package chat

// DefaultReply answers intents that have neither learned nor built-in replies.
const DefaultReply = "I'm not sure about that. Could you please rephrase your question or ask about our services, pricing, or contact information?"

// ErrorReply is returned to clients when a chat request fails internally.
const ErrorReply = "Sorry, I encountered an error. Please try again."

// Fallbacks are the built-in replies per seed intent.
var Fallbacks = map[string][]string{
	"greeting": {
		"Hello! How can I help you today?",
		"Hi there! Welcome to Maninfini. How can I assist you?",
	},
	"goodbye": {
		"Goodbye! Feel free to reach out if you need anything else.",
		"See you later! Have a great day.",
	},
	"thanks": {
		"You're welcome!",
		"Glad I could help!",
	},
	"help": {
		"I can help you with information about our services, pricing, portfolio, and more. What would you like to know?",
	},
	"automation": {
		"We specialize in business process automation and RPA solutions. Our automation services help businesses streamline operations and reduce manual work.",
	},
	"web_development": {
		"We offer custom web development services including e-commerce platforms, responsive websites, and web applications.",
	},
	"graphic_design": {
		"Our graphic design services include logo design, brand identity, marketing materials, and creative design solutions.",
	},
	"whatsapp": {
		"We provide WhatsApp Business API integration and chatbot development services.",
	},
	"ecommerce": {
		"We build complete e-commerce solutions with inventory management, payment gateways, and multi-channel selling.",
	},
	"pricing": {
		"Our pricing varies based on project requirements. Please contact us for a detailed quote tailored to your needs.",
	},
	"contact": {
		"You can reach us via WhatsApp, email, or through our contact form on the website.",
	},
	"portfolio": {
		"You can view our portfolio and case studies on our website. We have worked with various industries and clients.",
	},
	"team": {
		"Our team consists of experienced developers, designers, and automation specialists dedicated to delivering quality solutions.",
	},
	"technologies": {
		"We use modern technologies including React, Node.js, Python, and various automation tools depending on project requirements.",
	},
}
