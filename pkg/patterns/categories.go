package patterns

// =============================================================================
// PATTERN DEFINITIONS BY CATEGORY
// All patterns are registered here and compiled once at package init.
// This provides a single source of truth for all scam vocabulary.
// =============================================================================

// --- URGENCY PATTERNS (SIGNAL) ---
// Pressure language designed to make the victim act before thinking.
func (r *Registry) registerUrgencyPatterns() {
	cat := CategoryUrgency

	r.register("urgency_immediate", `(?i)\b(immediately|urgent(ly)?|right\s+now|asap)\b`, cat, 70, "Immediate-action pressure")
	r.register("urgency_now", `(?i)\bnow\b[!.]*\s*$|\bNOW\b`, cat, 60, "Trailing NOW demand")
	r.register("urgency_deadline", `(?i)\b(within|in\s+the\s+next)\s+\d+\s+(minutes?|hours?)\b`, cat, 70, "Countdown deadline")
	r.register("urgency_last_chance", `(?i)\b(last|final)\s+(chance|warning|notice|reminder)\b`, cat, 80, "Last-chance framing")
	r.register("urgency_expire", `(?i)\b(expires?|expiring|deadline|time\s+is\s+running\s+out)\b`, cat, 65, "Expiry pressure")
	r.register("urgency_hurry", `(?i)\b(hurry|quick(ly)?|fast|don'?t\s+delay|act\s+now)\b`, cat, 55, "Generic hurry-up")
	r.register("urgency_today_only", `(?i)\b(today\s+only|limited\s+time|offer\s+ends)\b`, cat, 60, "Scarcity window")
}

// --- PAYMENT REQUEST PATTERNS (SIGNAL) ---
// Explicit requests for money, payment identifiers, or payment credentials.
func (r *Registry) registerPaymentRequestPatterns() {
	cat := CategoryPaymentRequest

	r.register("pay_imperative", `(?i)\b(pay|send|transfer|deposit)\b.{0,40}\b(rs\.?|rupees?|inr|₹|\d+)`, cat, 85, "Imperative payment demand")
	r.register("pay_fee", `(?i)\b(processing|registration|verification|activation|release|clearance)\s+(fee|charge|amount)\b`, cat, 80, "Advance-fee request")
	r.register("pay_upi_mention", `(?i)\b(upi|gpay|google\s*pay|phonepe|paytm)\b`, cat, 70, "UPI rail mention")
	r.register("pay_otp_request", `(?i)\b(share|send|tell|give)\b.{0,30}\botp\b|\botp\b.{0,30}\b(share|send|code)\b`, cat, 90, "OTP solicitation")
	r.register("pay_card_details", `(?i)\b(card\s+number|cvv|pin\s+number|atm\s+pin|expiry\s+date)\b`, cat, 90, "Card credential request")
	r.register("pay_account_details", `(?i)\b(account\s+(number|details)|ifsc|net\s*banking\s+(password|credentials))\b`, cat, 75, "Bank credential request")
	r.register("pay_refund_bait", `(?i)\b(refund|cashback|reimbursement)\b.{0,40}\b(claim|process|receive)\b`, cat, 65, "Refund bait")
}

// --- THREAT PATTERNS (SIGNAL) ---
// Consequence language: account loss, arrest, legal action.
func (r *Registry) registerThreatPatterns() {
	cat := CategoryThreat

	r.register("threat_blocked", `(?i)\b(blocked|suspended|deactivated|frozen|locked)\b`, cat, 75, "Account lockout threat")
	r.register("threat_legal", `(?i)\b(legal\s+action|lawsuit|court|fir|police|arrest(ed)?)\b`, cat, 85, "Legal/police threat")
	r.register("threat_penalty", `(?i)\b(penalty|fine|charges?\s+will\s+apply)\b`, cat, 65, "Financial penalty threat")
	r.register("threat_loss", `(?i)\b(lose|forfeit)\b.{0,30}\b(money|funds|account|prize|access)\b`, cat, 70, "Loss-of-asset threat")
	r.register("threat_permanent", `(?i)\b(permanent(ly)?\s+(closed|blocked|banned|deleted))\b`, cat, 80, "Permanence threat")
	r.register("threat_consequence", `(?i)\b(or\s+else|otherwise|failure\s+to\s+comply)\b`, cat, 60, "Open-ended consequence")
}

// --- TERMINATION PATTERNS (EXIT SIGNAL) ---
// Scammer signalling disengagement; used by the exit evaluator.
func (r *Registry) registerTerminationPatterns() {
	cat := CategoryTermination

	r.register("term_goodbye", `(?i)\b(bye|goodbye|good\s+bye|talk\s+later)\b`, cat, 60, "Goodbye phrase")
	r.register("term_stop", `(?i)\b(stop\s+(messaging|texting)|don'?t\s+(message|contact)\s+me|leave\s+me\s+alone)\b`, cat, 80, "Stop-contact demand")
	r.register("term_wasting", `(?i)\b(wasting\s+(my\s+)?time|time\s*waster|not\s+interested)\b`, cat, 75, "Disengagement complaint")
	r.register("term_forget", `(?i)\b(forget\s+it|never\s*mind|deal\s+is\s+off)\b`, cat, 70, "Deal withdrawal")
}

// --- SCAM CLASSIFICATION PATTERNS (SESSION-LEVEL) ---
// Vocabulary that votes for a scam category. Severity acts as the vote
// weight; the classifier keeps the strongest cumulative category.
func (r *Registry) registerScamCategoryPatterns() {
	r.register("bank_kyc", `(?i)\b(kyc|know\s+your\s+customer)\b`, CategoryBanking, 80, "KYC update lure")
	r.register("bank_account", `(?i)\b(bank|account|debit|credit|net\s*banking|ifsc|branch)\b`, CategoryBanking, 60, "Banking vocabulary")
	r.register("bank_card", `(?i)\b(atm|card\s+(blocked|expired)|cvv)\b`, CategoryBanking, 70, "Card-scare vocabulary")

	r.register("tech_remote", `(?i)\b(anydesk|teamviewer|remote\s+(access|desktop|support))\b`, CategoryTechSupport, 85, "Remote-access tooling")
	r.register("tech_virus", `(?i)\b(virus|malware|hacked|infected|security\s+alert)\b`, CategoryTechSupport, 70, "Infection scare")
	r.register("tech_support", `(?i)\b(tech(nical)?\s+support|customer\s+(care|support)|helpdesk)\b`, CategoryTechSupport, 55, "Support-desk framing")

	r.register("prize_winner", `(?i)\b(congratulations?|you\s+(have\s+)?won|winner|selected)\b`, CategoryPrize, 70, "Winner announcement")
	r.register("prize_lottery", `(?i)\b(lottery|lucky\s+draw|jackpot|prize\s+money|sweepstake)\b`, CategoryPrize, 85, "Lottery vocabulary")
	r.register("prize_claim", `(?i)\b(claim\s+(your|the)\s+(prize|reward|gift))\b`, CategoryPrize, 75, "Prize claim instruction")

	r.register("romance_affection", `(?i)\b(my\s+(dear|love|darling)|sweetheart|soul\s*mate)\b`, CategoryRomance, 75, "Affection bombing")
	r.register("romance_lonely", `(?i)\b(lonely|looking\s+for\s+love|true\s+love|destiny)\b`, CategoryRomance, 60, "Romance framing")
	r.register("romance_emergency", `(?i)\b(stranded|hospital\s+bills?|customs\s+fee|flight\s+ticket)\b`, CategoryRomance, 65, "Romance emergency ask")

	r.register("job_offer", `(?i)\b(job\s+offer|work\s+from\s+home|part\s*time\s+(job|work)|earn\s+(daily|weekly))\b`, CategoryJobOffer, 80, "Job offer lure")
	r.register("job_salary", `(?i)\b(salary|per\s+day\s+income|easy\s+money|guaranteed\s+income)\b`, CategoryJobOffer, 65, "Income promise")
	r.register("job_task", `(?i)\b(simple\s+tasks?|like\s+and\s+subscribe|rating\s+tasks?)\b`, CategoryJobOffer, 70, "Task-scam vocabulary")
}
