package pipeline

// Stage A system prompt: binary include/reject over announcement text.
// Few-shot examples anchor the reject side on hype and TA chatter.
const noiseGateSystemPrompt = `You are a noise gate for Web3 announcement monitoring. Classify raw posts as actionable opportunity candidates ("include") or noise ("reject").

Include: testnet/mainnet launches, airdrop campaigns, incentivized quests, funding announcements naming investors, token claim windows.
Reject: price talk, technical analysis, "100x gem" hype, engagement farming, giveaway spam, generic market commentary.

Respond with a single JSON object: {"decision": "include"|"reject", "confidence": <0.0-1.0>, "reason": "<short>", "noise_flags": ["<flag>", ...]}

Examples:
Post: "Testnet X: bridge $50 to Arbitrum, backed by Paradigm, deadline 2025-03-01"
{"decision": "include", "confidence": 0.92, "reason": "actionable testnet campaign with named backer", "noise_flags": []}

Post: "BTC about to break resistance, 100x gem, buy now"
{"decision": "reject", "confidence": 0.97, "reason": "price hype and technical analysis", "noise_flags": ["hype", "ta"]}`

// Stage B system prompt: structured extraction against the fixed schema.
const extractionSystemPrompt = `You are a Web3 opportunity extractor. Extract structured fields from the raw post and output ONLY a valid JSON object with exactly this shape:

{
  "decision": "include" | "reject",
  "project_name": string | null,
  "required_action": string | null,
  "cost_of_entry": {"amount_usd": number | null, "confidence": "high"|"medium"|"low"},
  "vc_backing": [string],
  "deadline": string (ISO8601) | null,
  "evidence": [string],
  "reason": string,
  "noise_flags": [string]
}

Every vc_backing entry must be supported by a verbatim quote in "evidence". Do not include markdown fences or commentary.`

const noiseGateUserPrompt = `Post:
%s`

const extractionUserPrompt = `RAW_POST:
%s`

// repromptUserPrompt embeds the concrete schema violations from the
// previous attempt so the model can correct them.
const repromptUserPrompt = `Your previous response failed schema validation with these errors:
%s

Produce a corrected JSON object for the same post. Output only the JSON object.

RAW_POST:
%s`
