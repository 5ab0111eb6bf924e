package anki

// collectionSchema is the version-11 collection layout.
const collectionSchema = `
CREATE TABLE col (
    id     integer PRIMARY KEY,
    crt    integer NOT NULL,
    mod    integer NOT NULL,
    scm    integer NOT NULL,
    ver    integer NOT NULL,
    dty    integer NOT NULL,
    usn    integer NOT NULL,
    ls     integer NOT NULL,
    conf   text NOT NULL,
    models text NOT NULL,
    decks  text NOT NULL,
    dconf  text NOT NULL,
    tags   text NOT NULL
);
CREATE TABLE notes (
    id    integer PRIMARY KEY,
    guid  text NOT NULL,
    mid   integer NOT NULL,
    mod   integer NOT NULL,
    usn   integer NOT NULL,
    tags  text NOT NULL,
    flds  text NOT NULL,
    sfld  text NOT NULL,
    csum  integer NOT NULL,
    flags integer NOT NULL,
    data  text NOT NULL
);
CREATE TABLE cards (
    id     integer PRIMARY KEY,
    nid    integer NOT NULL,
    did    integer NOT NULL,
    ord    integer NOT NULL,
    mod    integer NOT NULL,
    usn    integer NOT NULL,
    type   integer NOT NULL,
    queue  integer NOT NULL,
    due    integer NOT NULL,
    ivl    integer NOT NULL,
    factor integer NOT NULL,
    reps   integer NOT NULL,
    lapses integer NOT NULL,
    left   integer NOT NULL,
    odue   integer NOT NULL,
    odid   integer NOT NULL,
    flags  integer NOT NULL,
    data   text NOT NULL
);
CREATE TABLE revlog (
    id      integer PRIMARY KEY,
    cid     integer NOT NULL,
    usn     integer NOT NULL,
    ease    integer NOT NULL,
    ivl     integer NOT NULL,
    lastIvl integer NOT NULL,
    factor  integer NOT NULL,
    time    integer NOT NULL,
    type    integer NOT NULL
);
CREATE TABLE graves (
    usn  integer NOT NULL,
    oid  integer NOT NULL,
    type integer NOT NULL
);
CREATE INDEX ix_notes_usn ON notes (usn);
CREATE INDEX ix_cards_usn ON cards (usn);
CREATE INDEX ix_revlog_usn ON revlog (usn);
CREATE INDEX ix_cards_nid ON cards (nid);
CREATE INDEX ix_cards_sched ON cards (did, queue, due);
CREATE INDEX ix_revlog_cid ON revlog (cid);
CREATE INDEX ix_notes_csum ON notes (csum);
`

// defaultConf mirrors the collection defaults importers tolerate.
const defaultConf = `{"nextPos":1,"estTimes":true,"activeDecks":[1],"sortType":"noteFld",` +
	`"timeLim":0,"sortBackwards":false,"addToCur":true,"curDeck":1,"newBury":true,` +
	`"newSpread":0,"dueCounts":true,"curModel":null,"collapseTime":1200}`

// defaultDeckConf is the single default deck options group.
const defaultDeckConf = `{"1":{"id":1,"name":"Default","mod":0,"usn":0,"maxTaken":60,"autoplay":true,` +
	`"timer":0,"replayq":true,"dyn":false,` +
	`"new":{"bury":true,"delays":[1,10],"initialFactor":2500,"ints":[1,4,7],"order":1,"perDay":20,"separate":true},` +
	`"rev":{"bury":true,"ease4":1.3,"fuzz":0.05,"ivlFct":1,"maxIvl":36500,"minSpace":1,"perDay":100},` +
	`"lapse":{"delays":[10],"leechAction":0,"leechFails":8,"minInt":1,"mult":0}}}`

// questionTemplate renders the front of a card.
const questionTemplate = `<div class="card-front">
  <div class="question">{{Question}}</div>
  {{#Context}}
  <div class="context">Context: {{Context}}</div>
  {{/Context}}
</div>`

// answerTemplate renders the back of a card.
const answerTemplate = `<div class="card-back">
  <div class="question">{{Question}}</div>
  <hr id="answer">
  <div class="answer">{{Answer}}</div>
  {{#Explanation}}
  <div class="explanation">
    <strong>Explanation:</strong> {{Explanation}}
  </div>
  {{/Explanation}}
  {{#Difficulty}}
  <div class="difficulty">Difficulty: {{Difficulty}}</div>
  {{/Difficulty}}
  {{#Source}}
  <div class="source">Source: {{Source}}</div>
  {{/Source}}
</div>`

// deckCSS styles the rendered cards.
const deckCSS = `.card {
  font-family: "Segoe UI", Tahoma, Geneva, Verdana, sans-serif;
  font-size: 20px;
  text-align: center;
  color: #333;
  background-color: #fff;
  padding: 20px;
}
.question { font-size: 24px; font-weight: bold; margin-bottom: 15px; color: #2c3e50; }
.context { font-size: 16px; font-style: italic; color: #7f8c8d; margin-top: 10px; }
.answer { font-size: 20px; margin: 20px 0; color: #27ae60; line-height: 1.6; }
.explanation { font-size: 16px; color: #555; margin-top: 15px; text-align: left; }
.difficulty { font-size: 14px; color: #95a5a6; margin-top: 10px; }
.source { font-size: 12px; color: #bdc3c7; margin-top: 10px; font-style: italic; }
hr#answer { border: none; border-top: 2px solid #ecf0f1; margin: 20px 0; }`
