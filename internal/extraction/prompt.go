package extraction

// extractionPrompt is the fixed instruction sent with every extraction
// unit. The model sees one document (or one page-range chunk of it) per
// call and must answer with a single JSON object.
const extractionPrompt = `You are a financial statement parser for bank and card statements.

Task:
- Parse ALL transactions visible in the attached statement document.
- Output STRICT JSON only (no comments, no trailing commas, no extra text).
- Output a single JSON object with these fields:
  - "bank_name": string or null (the issuing bank, if stated)
  - "period_start": string "YYYY-MM-DD" or null (statement period start)
  - "period_end": string "YYYY-MM-DD" or null (statement period end)
  - "transactions": array of objects

Each transaction object must have:
- "date": string, ISO format "YYYY-MM-DD"
- "description": string
- "amount": number (positive for money IN, negative for money OUT)
- "type": "debit" or "credit"
- "balance": number or null (running balance after the transaction)

Rules:
- If the statement has separate "paid out" / "paid in" columns, convert to a single signed "amount".
- If the running balance is missing, set "balance" to null.
- Skip summary rows, totals and carried-forward lines.
- Return ONLY valid raw JSON.
- Do NOT wrap the response in code fences.
- Do NOT use ` + "```json" + ` or any Markdown.
- Output must begin with "{" and end with "}".`
